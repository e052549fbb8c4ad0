package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	outputFormat string
	inputFile    string
	logLines     int
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show nanobot status and a config summary",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		d, err := env.client.Dashboard(ctx)
		if err != nil {
			return err
		}
		env.store.SetDashboard(d)
		if outputFormat != "" {
			return writeValue(stdout, outputFormat, d)
		}
		info := env.store.ServerInfo()
		if info == nil {
			if me, err := env.client.Me(ctx); err == nil {
				env.store.SetServerInfo(me)
				info = me
			}
		}
		fmt.Fprint(stdout, renderDashboard(d, info))
		return nil
	}),
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or replace nanobot's config.json",
}

var configGetCmd = &cobra.Command{
	Use:   "get [section]",
	Short: "Print the whole config or one top-level section",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, env *clientEnv) error {
			if len(args) == 1 {
				v, err := env.client.ConfigSection(ctx, args[0])
				if err != nil {
					return err
				}
				return writeValue(stdout, outputFormat, v)
			}
			doc, err := env.client.Config(ctx)
			if err != nil {
				return err
			}
			return writeValue(stdout, outputFormat, doc)
		})(cmd, args)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [section] -f FILE",
	Short: "Replace the whole config or one section from a JSON or YAML file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readDataFile(inputFile)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, env *clientEnv) error {
			if len(args) == 1 {
				if err := env.client.UpdateConfigSection(ctx, args[0], data); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Section %q saved\n", args[0])
				return nil
			}
			if err := env.client.UpdateConfig(ctx, data); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Config saved")
			return nil
		})(cmd, args)
	},
}

// namedSection builds "list" and "set NAME" for an object-valued section
// such as channels or providers.
type namedSection struct {
	use, noun string
	list      func(ctx context.Context, env *clientEnv) (map[string]any, error)
	update    func(ctx context.Context, env *clientEnv, name string, data map[string]any) error
}

func (ns namedSection) command() *cobra.Command {
	parent := &cobra.Command{
		Use:   ns.use,
		Short: "Show or edit nanobot " + ns.use,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured " + ns.use,
		RunE: withClient(func(ctx context.Context, env *clientEnv) error {
			section, err := ns.list(ctx, env)
			if err != nil {
				return err
			}
			if outputFormat != "" {
				return writeValue(stdout, outputFormat, section)
			}
			if len(section) == 0 {
				fmt.Fprintf(stdout, "No %s configured\n", ns.use)
				return nil
			}
			for _, name := range sortedKeys(section) {
				entry, _ := section[name].(map[string]any)
				fmt.Fprintf(stdout, "%-16s %s\n", name, entryState(ns.noun, entry))
			}
			return nil
		}),
	}
	list.Flags().StringVarP(&outputFormat, "output", "o", "", "print raw values as json or yaml")

	set := &cobra.Command{
		Use:   "set <name> -f FILE",
		Short: "Replace one " + ns.noun + "'s settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readDataFile(inputFile)
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, env *clientEnv) error {
				if err := ns.update(ctx, env, args[0], data); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "%s %q saved\n", capitalize(ns.noun), args[0])
				return nil
			})(cmd, args)
		},
	}
	set.Flags().StringVarP(&inputFile, "file", "f", "", "JSON or YAML file (- for stdin)")

	parent.AddCommand(list, set)
	return parent
}

// entryState summarises a channel or provider entry without printing
// secrets.
func entryState(noun string, entry map[string]any) string {
	if entry == nil {
		return "-"
	}
	switch noun {
	case "channel":
		return badge(entry["enabled"] == true, "enabled", "disabled")
	case "provider":
		key, _ := entry["apiKey"].(string)
		if key == "" {
			key, _ = entry["api_key"].(string)
		}
		return badge(key != "", "active", "no api key")
	}
	return "-"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var channelsSection = namedSection{
	use:  "channels",
	noun: "channel",
	list: func(ctx context.Context, env *clientEnv) (map[string]any, error) {
		return env.client.Channels(ctx)
	},
	update: func(ctx context.Context, env *clientEnv, name string, data map[string]any) error {
		return env.client.UpdateChannel(ctx, name, data)
	},
}

var providersSection = namedSection{
	use:  "providers",
	noun: "provider",
	list: func(ctx context.Context, env *clientEnv) (map[string]any, error) {
		return env.client.Providers(ctx)
	},
	update: func(ctx context.Context, env *clientEnv, name string, data map[string]any) error {
		return env.client.UpdateProvider(ctx, name, data)
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show or edit the agents config and AGENTS.md",
}

var agentsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the agents section and AGENTS.md",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		a, err := env.client.Agents(ctx)
		if err != nil {
			return err
		}
		if outputFormat != "" {
			return writeValue(stdout, outputFormat, a)
		}
		fmt.Fprintln(stdout, titleStyle.Render("agents"))
		if err := writeValue(stdout, formatJSON, a.Config); err != nil {
			return err
		}
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, titleStyle.Render("AGENTS.md"))
		if a.AgentsMD == nil {
			fmt.Fprintln(stdout, "(not found)")
			return nil
		}
		fmt.Fprintln(stdout, *a.AgentsMD)
		return nil
	}),
}

var agentsSetMDCmd = &cobra.Command{
	Use:   "set-md -f FILE",
	Short: "Replace AGENTS.md",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(inputFile)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, env *clientEnv) error {
			if err := env.client.UpdateAgentsMD(ctx, string(raw)); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "AGENTS.md saved")
			return nil
		})(cmd, args)
	},
}

var agentsSetConfigCmd = &cobra.Command{
	Use:   "set-config -f FILE",
	Short: "Replace the agents config section",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readDataFile(inputFile)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, env *clientEnv) error {
			if err := env.client.UpdateAgentsConfig(ctx, data); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Agents config saved")
			return nil
		})(cmd, args)
	},
}

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List, show and edit skills",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspace and builtin skills",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		skills, err := env.client.Skills(ctx)
		if err != nil {
			return err
		}
		if outputFormat != "" {
			return writeValue(stdout, outputFormat, skills)
		}
		if len(skills) == 0 {
			fmt.Fprintln(stdout, "No skills found")
			return nil
		}
		for _, s := range skills {
			fmt.Fprintf(stdout, "%-24s %-10s %s\n", s.Name, s.Source, s.Path)
		}
		return nil
	}),
}

var skillsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a skill's SKILL.md",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, env *clientEnv) error {
			s, err := env.client.Skill(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, s.Content)
			return nil
		})(cmd, args)
	},
}

var skillsCreateCmd = &cobra.Command{
	Use:   "create <name> -f FILE",
	Short: "Create a workspace skill",
	Args:  cobra.ExactArgs(1),
	RunE:  skillWrite(true),
}

var skillsUpdateCmd = &cobra.Command{
	Use:   "update <name> -f FILE",
	Short: "Replace a skill's SKILL.md",
	Args:  cobra.ExactArgs(1),
	RunE:  skillWrite(false),
}

func skillWrite(create bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(inputFile)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, env *clientEnv) error {
			name := args[0]
			if create {
				if err := env.client.CreateSkill(ctx, name, string(raw)); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Skill %q created\n", name)
				return nil
			}
			if err := env.client.UpdateSkill(ctx, name, string(raw)); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Skill %q saved\n", name)
			return nil
		})(cmd, args)
	}
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show or replace the tools section",
}

var toolsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the tools section",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		tools, err := env.client.Tools(ctx)
		if err != nil {
			return err
		}
		return writeValue(stdout, outputFormat, tools)
	}),
}

var toolsSetCmd = &cobra.Command{
	Use:   "set -f FILE",
	Short: "Replace the tools section",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readDataFile(inputFile)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, env *clientEnv) error {
			if err := env.client.UpdateTools(ctx, data); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Tools saved")
			return nil
		})(cmd, args)
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "List or edit workspace memory files",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory files",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		files, err := env.client.Memory(ctx)
		if err != nil {
			return err
		}
		if outputFormat != "" {
			return writeValue(stdout, outputFormat, files)
		}
		if len(files) == 0 {
			fmt.Fprintln(stdout, "No memory files found")
			return nil
		}
		for _, f := range files {
			fmt.Fprintf(stdout, "%-24s %s (%d bytes)\n", f.Name, f.Path, len(f.Content))
		}
		return nil
	}),
}

var memorySetCmd = &cobra.Command{
	Use:   "set <path> -f FILE",
	Short: "Write a memory file (path relative to the workspace, under memory/)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(inputFile)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, env *clientEnv) error {
			if err := env.client.UpdateMemory(ctx, args[0], string(raw)); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Memory file %q saved\n", args[0])
			return nil
		})(cmd, args)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent nanobot logs",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		logs, err := env.client.Logs(ctx, logLines)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, strings.TrimRight(logs, "\n"))
		return nil
	}),
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the nanobot process on the host",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		fmt.Fprintln(stdout, "Restarting nanobot...")
		res, err := env.client.RestartService(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, statusText(res.Message, "Restarted"))
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{dashboardCmd, configGetCmd, agentsShowCmd, skillsListCmd, toolsShowCmd, memoryListCmd} {
		c.Flags().StringVarP(&outputFormat, "output", "o", "", "output format: json or yaml")
	}
	for _, c := range []*cobra.Command{configSetCmd, agentsSetMDCmd, agentsSetConfigCmd, skillsCreateCmd, skillsUpdateCmd, toolsSetCmd, memorySetCmd} {
		c.Flags().StringVarP(&inputFile, "file", "f", "", "input file (- for stdin)")
	}
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 100, "number of lines (1-1000)")

	configCmd.AddCommand(configGetCmd, configSetCmd)
	agentsCmd.AddCommand(agentsShowCmd, agentsSetMDCmd, agentsSetConfigCmd)
	skillsCmd.AddCommand(skillsListCmd, skillsShowCmd, skillsCreateCmd, skillsUpdateCmd)
	toolsCmd.AddCommand(toolsShowCmd, toolsSetCmd)
	memoryCmd.AddCommand(memoryListCmd, memorySetCmd)

	rootCmd.AddCommand(
		dashboardCmd,
		configCmd,
		channelsSection.command(),
		providersSection.command(),
		agentsCmd,
		skillsCmd,
		toolsCmd,
		memoryCmd,
		logsCmd,
		restartCmd,
	)
}
