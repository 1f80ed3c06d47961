// Package tick composes short units of work into serial chains, iterations,
// fan-out/fan-in and streaming queues that run on a single-threaded loop.
//
// Everything runs on a loop.Loop. Steps advance cooperatively: a step gets a
// fresh context, does its work (possibly scheduling async work on the loop)
// and finishes by calling Next, End or Join on that context.
//
//	l := loop.New(loop.WithLogger(tick.GoLog(os.Stderr, "", logrus.InfoLevel)))
//	f := steps.MustFlow([]steps.Step[*Order]{
//		steps.StepFunc[*Order](loadOrder),
//		steps.MustParallelEach(steps.StepFunc[*Order](reserveItem)),
//		steps.StepFunc[*Order](finish),
//	}, steps.WithName("orders"))
//	res := f.Start(l, &Order{}, "order-1")
//	if err := l.Run(context.Background()); err != nil {
//		...
//	}
//
// The packages:
//   - loop: the scheduler and its next turn hook
//   - steps: the context protocol and the flow, each, parallel and queue constructs
//   - future: single shot completion values
//   - eventbus: synchronous notifications for completion and step lifecycle
package tick
