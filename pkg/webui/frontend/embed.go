package frontend

import "embed"

// Dist embeds the landing page served at the gateway root.
//
//go:embed dist/*
var Dist embed.FS
