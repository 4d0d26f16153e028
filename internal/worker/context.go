package worker

import "context"

type cpuCtxKey struct{}

// contextWithCPU tags ctx with the id of the CPU currently driving it,
// so code reached indirectly through a task's workflow (e.g. the
// release step) can attribute scheduler posts to the right
// immediate-successor slot without threading a *CPU value through every
// call.
func contextWithCPU(ctx context.Context, id int32) context.Context {
	return context.WithValue(ctx, cpuCtxKey{}, id)
}

func cpuIDFromContext(ctx context.Context) (int32, bool) {
	v, ok := ctx.Value(cpuCtxKey{}).(int32)
	return v, ok
}
