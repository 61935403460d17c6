// Package engine executes planned worklists against rack state.
//
// # Overview
//
// A run is an ordered list of jobs. Each job pairs one planned worklist
// with the racks it acts on and the pipetting specs of the instrument. The
// Driver processes jobs strictly in index order:
//
//  1. Validate - every job and the uniqueness of job indices (ValidateJobs)
//  2. Stage - each transfer is registered with staging samples (Executor)
//  3. Sweep - overflow and underflow are checked on the staged end state
//  4. Commit - the staged state is written into the racks
//  5. Publish - executed worklists or emission streams are handed out
//
// Staging never touches a rack. A job either commits completely or returns
// an errdefs.List with every transfer violation found, and the racks keep
// their state. The driver works on scratch copies of all racks so a later
// job sees the results of earlier ones, and it copies the state back only
// once every job succeeded.
//
// # Modes
//
//   - ModeExecute: produces one worklist.ExecutedWorklist per job
//   - ModeWrite: produces one worklist.Stream per job for liquid handlers
//
// # Collaborators
//
// Repository loads racks and stock samples and stores executed worklists.
// StreamSink receives emission streams. StockResolver adapts a Repository
// to the planner's stock assignment.
//
// # Example
//
//	driver := engine.NewDriver("operator", engine.WithRepository(store))
//	result, err := driver.Run(ctx, engine.ModeExecute, jobs)
//	if err != nil {
//	    for _, v := range errdefs.AsList(err) {
//	        log.Println(v.Code, v.Rack, v.Position)
//	    }
//	}
package engine
