package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kazz187/issuelab/internal/agent"
	"github.com/kazz187/issuelab/pkg/color"
)

func (rt *runtime) handleListAgents(_ context.Context) (int, error) {
	registry, err := rt.loader.Load(*listAgentsAll)
	if err != nil {
		return 0, err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tMODE\tREPOSITORY\tENABLED")
	for _, cfg := range registry.Configs() {
		repo := cfg.Repository
		if repo == "" {
			repo = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", cfg.CanonicalName(), cfg.Type, cfg.Mode(), repo, cfg.IsEnabled())
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	fmt.Printf("\n%d agents in %s\n\n", registry.Len(), registry.Dir())
	fmt.Println(registry.MatrixMarkdown())
	return 0, nil
}

func (rt *runtime) handleValidateAgents(ctx context.Context) (int, error) {
	dir := rt.env.AgentsDir
	problems, err := agent.Validate(dir, rt.env.OutputTemplatesFile())
	if err != nil {
		return 0, err
	}
	printProblems(problems)

	if !*validateWatch {
		if len(problems) > 0 {
			return 1, nil
		}
		return 0, nil
	}

	prev, err := agent.Load(dir, true)
	if err != nil {
		return 0, err
	}
	fmt.Println(color.Notice(fmt.Sprintf("[INFO] watching %s, press Ctrl+C to stop", dir)))
	err = agent.Watch(ctx, dir, func(next *agent.Registry, err error) {
		if err != nil {
			fmt.Println(color.Failure("[ERROR] " + err.Error()))
			return
		}
		if diff := agent.MatrixDiff(prev, next); diff != "" {
			fmt.Print(diff)
		}
		prev = next
		problems, err := agent.Validate(dir, rt.env.OutputTemplatesFile())
		if err != nil {
			fmt.Println(color.Failure("[ERROR] " + err.Error()))
			return
		}
		printProblems(problems)
	})
	return 0, err
}

func printProblems(problems []agent.Problem) {
	if len(problems) == 0 {
		fmt.Println(color.Success("[OK] all agents are valid"))
		return
	}
	fmt.Println(color.Failure(fmt.Sprintf("[ERROR] %d problems found:", len(problems))))
	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}
}
