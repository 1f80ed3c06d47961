// Package steps contains the constructs to orchestrate short units of work on a loop.
//
// A step gets a fresh Context for every invocation and finishes by calling Next, End or Join
// on it, either right away or from a later turn of the loop. The context carries the shared
// payload of the flow in Data and the error slot in Err.
//
//	f := steps.MustFlow([]steps.Step[*state]{
//		steps.StepFunc[*state](func(c *steps.Context[*state], args ...interface{}) {
//			c.Next(1, 2, 3)
//		}),
//		steps.MustEach(steps.StepFunc[*state](double), steps.WithBatchSize(2)),
//		steps.Recover(handle.OnCancel, steps.StepFunc[*state](report)),
//	})
//	f.Start(l, &state{})
//
// Flow, Each, Parallel and ParallelEach are steps themselves, so they nest.
// Queue and ParallelQueue are fed with Push and report to a QueueHandler,
// Resume turns the context of a step into such a handler.
//
// Every construct yields to the loop after batch size synchronous advances,
// long synchronous chains don't grow the stack.
package steps
