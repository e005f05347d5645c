package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hupe1980/brigade"
	"github.com/hupe1980/brigade/config"
	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/orchestrator"
	"github.com/hupe1980/brigade/workflow"
)

type runFlags struct {
	set     []string
	timeout time.Duration
}

// runInput bundles what runWorkflow needs.
type runInput struct {
	cfg    *config.Config
	wf     core.Workflow
	values map[string]any
}

// runReport is printed as JSON after a run.
type runReport struct {
	Workflow       string             `json:"workflow"`
	State          string             `json:"state"`
	CompletedSteps []string           `json:"completedSteps"`
	PendingSteps   []string           `json:"pendingSteps"`
	Tasks          []core.Task        `json:"tasks"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
}

func newRunCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow with the built-in agents",
		Example: `  brigade run menu.yaml --set dish="Pad Thai" --set ingredients="rice noodles, peanuts, egg"
  brigade run plan.yaml --set text="Food cost is up and turnover is high" --timeout 30s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseSet(flags.set)
			if err != nil {
				return err
			}
			wf, err := workflow.Load(args[0])
			if err != nil {
				return err
			}
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}

			timeout := flags.timeout
			if timeout <= 0 {
				timeout = cfg.Orchestrator.WorkflowTimeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return runWorkflow(ctx, cmd.ErrOrStderr(), cmd.OutOrStdout(), runInput{cfg: cfg, wf: wf, values: values})
		},
	}

	cmd.Flags().StringArrayVar(&flags.set, "set", nil, "Workflow context value as key=value (repeatable)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Maximum time to wait for the workflow (defaults to orchestrator.workflow_timeout)")

	return cmd
}

func runWorkflow(ctx context.Context, logOut, out io.Writer, run runInput) error {
	cfg := run.cfg

	logger, err := newLogger(cfg.Logging, logOut)
	if err != nil {
		return err
	}
	store, closeStore, err := newKnowledgeStore(cfg.Knowledge)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
	}

	b := brigade.New(func(o *brigade.Options) {
		o.OrchestratorConfig = orchestrator.Config{
			MaxConcurrentTasks:       cfg.Orchestrator.MaxConcurrentTasks,
			SerializePerAgent:        cfg.Orchestrator.SerializePerAgent,
			EnforceDeadlines:         cfg.Orchestrator.EnforceDeadlines,
			CheckConditionsOnResolve: cfg.Orchestrator.CheckConditionsOnResolve,
			RenderDescriptions:       cfg.Orchestrator.RenderDescriptions,
			EventBufferSize:          cfg.Orchestrator.EventBufferSize,
		}
		o.KnowledgeStore = store
		o.Logger = logger.WithComponent("orchestrator")
		if reg != nil {
			o.MetricsRegisterer = reg
			o.MetricsNamespace = cfg.Metrics.Namespace
		}
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Shutdown(shutdownCtx)
	}()

	for _, a := range builtinAgents(cfg.Model, logger.WithComponent("agent")) {
		if err := b.RegisterAgent(a); err != nil {
			return err
		}
	}
	if err := b.RegisterWorkflow(run.wf); err != nil {
		return err
	}

	status, runErr := b.Run(ctx, run.wf.ID, run.values)
	b.Orchestrator().Wait()

	report := runReport{
		Workflow:       run.wf.ID,
		State:          string(status.State),
		CompletedSteps: status.CompletedSteps,
		PendingSteps:   status.PendingSteps,
		Tasks:          status.Tasks,
	}
	if reg != nil {
		report.Metrics = gatherMetrics(reg)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if status.State != orchestrator.WorkflowCompleted {
		return fmt.Errorf("workflow %s %s", run.wf.ID, status.State)
	}
	return nil
}

// parseSet turns repeated key=value flags into context values.
func parseSet(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", p)
		}
		values[k] = v
	}
	return values, nil
}

// gatherMetrics flattens unlabeled counters and gauges and sums labeled ones.
func gatherMetrics(reg *prometheus.Registry) map[string]float64 {
	families, err := reg.Gather()
	if err != nil {
		return nil
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = sum
	}
	return out
}
