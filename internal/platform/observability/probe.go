package observability

import "context"

type identityProbe struct {
	uid   string
	admin bool
}

type identityProbeKey struct{}

func withIdentityProbe(ctx context.Context, probe *identityProbe) context.Context {
	return context.WithValue(ctx, identityProbeKey{}, probe)
}

func identityProbeFrom(ctx context.Context) *identityProbe {
	probe, _ := ctx.Value(identityProbeKey{}).(*identityProbe)
	return probe
}
