package main

import (
	"context"
	"fmt"
	"time"

	"github.com/casualjim/tick/loop"
	"github.com/casualjim/tick/steps"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

var modes = []string{"flow", "each", "parallel", "queue", "pqueue"}

type benchConfig struct {
	Mode      string
	Items     int
	BatchSize int
}

type report struct {
	Mode    string
	Items   int
	Batch   int
	Turns   int64
	Tasks   int64
	Sum     int
	Elapsed time.Duration
}

func (r *report) String() string {
	return fmt.Sprintf("mode=%s items=%d batch=%d turns=%d tasks=%d sum=%d elapsed=%s",
		r.Mode, r.Items, r.Batch, r.Turns, r.Tasks, r.Sum, r.Elapsed)
}

type tally struct {
	Sum int
}

type tallyStep = steps.Step[*tally]

func double() tallyStep {
	return steps.StepFunc[*tally](func(c *steps.Context[*tally], args ...interface{}) {
		c.Next(args[0].(int) * 2)
	})
}

func runBench(ctx context.Context, cfg benchConfig, log logrus.FieldLogger) (*report, error) {
	registry := metrics.NewRegistry()
	l := loop.New(loop.WithLogger(log), loop.WithMetrics(registry))
	opts := []steps.Option{
		steps.WithBatchSize(cfg.BatchSize),
		steps.WithLogger(log),
		steps.WithName(cfg.Mode),
	}

	items := make([]int, cfg.Items)
	for i := range items {
		items[i] = i
	}

	data := &tally{}
	var results []interface{}
	var failure error
	collect := steps.StepFunc[*tally](func(c *steps.Context[*tally], args ...interface{}) {
		if len(args) > 0 {
			results, _ = args[0].([]interface{})
		}
		c.Next()
	})
	onQueueDone := steps.QueueHandler[*tally](func(_ *tally, err error, res []interface{}) {
		failure = err
		results = res
	})

	switch cfg.Mode {
	case "flow":
		chain := make([]tallyStep, cfg.Items)
		for i := range chain {
			chain[i] = steps.StepFunc[*tally](func(c *steps.Context[*tally], args ...interface{}) {
				c.Data.Sum += 2 * c.Index
				c.Next(args...)
			})
		}
		f, err := steps.NewFlow(chain, opts...)
		if err != nil {
			return nil, err
		}
		f.Start(l, data)
	case "each":
		each, err := steps.NewEach(double(), opts...)
		if err != nil {
			return nil, err
		}
		f, err := steps.NewFlow([]tallyStep{each, collect}, opts...)
		if err != nil {
			return nil, err
		}
		f.Start(l, data, items)
	case "parallel":
		worker := steps.StepFunc[*tally](func(c *steps.Context[*tally], args ...interface{}) {
			v := args[0].(int)
			c.Loop().NextTick(func() { c.Join(v * 2) })
		})
		pe, err := steps.NewParallelEach[*tally](worker, opts...)
		if err != nil {
			return nil, err
		}
		f, err := steps.NewFlow([]tallyStep{pe, collect}, opts...)
		if err != nil {
			return nil, err
		}
		f.Start(l, data, items)
	case "queue":
		q, err := steps.NewQueue(l, data, double(), onQueueDone, opts...)
		if err != nil {
			return nil, err
		}
		for _, v := range items {
			if err := q.Push(v); err != nil {
				return nil, err
			}
		}
		if err := q.Complete(); err != nil {
			return nil, err
		}
	case "pqueue":
		q, err := steps.NewParallelQueue(l, data, double(), onQueueDone, opts...)
		if err != nil {
			return nil, err
		}
		for _, v := range items {
			if err := q.Push(v); err != nil {
				return nil, err
			}
		}
		if err := q.Complete(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown mode %q, expected one of %v", cfg.Mode, modes)
	}

	start := time.Now()
	if err := l.Run(ctx); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}

	sum := data.Sum
	for _, r := range results {
		if v, ok := r.(int); ok {
			sum += v
		}
	}
	return &report{
		Mode:    cfg.Mode,
		Items:   cfg.Items,
		Batch:   cfg.BatchSize,
		Turns:   l.Turns(),
		Tasks:   metrics.GetOrRegisterCounter("loop.tasks", registry).Count(),
		Sum:     sum,
		Elapsed: time.Since(start),
	}, nil
}
