package graph

// Compile runs two static checks:
//  1. every arc is checked by chainValidator; each rejection is recorded.
//  2. cycle detection via DFS with a recursion stack.
//
// On zero errors, IsCompiled becomes true and Compile returns true.
// Otherwise it returns false, leaves IsCompiled false, and ErrorCount
// exposes the tally. Individual failures are logged.
func (p *Process) Compile(chainValidator ChainValidator) bool {
	var compileErr CompileError

	for _, src := range p.TaskIDs() {
		srcTask := p.tasks[src]
		for _, tgt := range p.successors[src] {
			tgtTask := p.tasks[tgt]
			if !chainValidator.ValidateLink(srcTask.OutputSpecID, tgtTask.InputSpecID) {
				compileErr.LinkErrors = append(compileErr.LinkErrors, LinkError{From: src, To: tgt})
				p.logger.Error("graph: chain validation failed", "from", src, "to", tgt)
			}
		}
	}

	for _, cycle := range p.detectCycles() {
		compileErr.CycleErrors = append(compileErr.CycleErrors, cycle)
		p.logger.Error("graph: cycle detected", "path", cycle.Path)
	}

	p.errorCount = compileErr.Count()
	if p.errorCount == 0 {
		p.isCompiled = true
		p.logger.Info("graph: compile succeeded", "process_id", p.ProcessID, "tasks", len(p.tasks))
		return true
	}

	p.isCompiled = false
	p.logger.Warn("graph: compile failed", "process_id", p.ProcessID, "error_count", p.errorCount)
	return false
}

// CompileErrors re-runs the same checks as Compile but returns the full
// aggregated error instead of a boolean, for callers (e.g. the CLI) that
// want to report every individual failure.
func (p *Process) CompileErrors(chainValidator ChainValidator) *CompileError {
	var compileErr CompileError
	for _, src := range p.TaskIDs() {
		srcTask := p.tasks[src]
		for _, tgt := range p.successors[src] {
			tgtTask := p.tasks[tgt]
			if !chainValidator.ValidateLink(srcTask.OutputSpecID, tgtTask.InputSpecID) {
				compileErr.LinkErrors = append(compileErr.LinkErrors, LinkError{From: src, To: tgt})
			}
		}
	}
	compileErr.CycleErrors = append(compileErr.CycleErrors, p.detectCycles()...)
	if compileErr.Count() == 0 {
		return nil
	}
	return &compileErr
}
