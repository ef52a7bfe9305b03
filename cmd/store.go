package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/transition-cli/internal/identity"
	"github.com/sells-group/transition-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" && cfg.Store.Driver == "sqlite" {
		dsn = "transition.db"
	}
	return store.Open(ctx, cfg.Store.Driver, dsn)
}

// loadSnapshot builds an identity snapshot from the stored corpus and
// releases the store before returning.
func loadSnapshot(ctx context.Context) (*identity.Snapshot, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}

	vendors, err := st.LoadVendors(ctx)
	if err != nil {
		return nil, err
	}
	identifiers, err := st.LoadIdentifiers(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := st.LoadAliases(ctx)
	if err != nil {
		return nil, err
	}

	builder := identity.NewBuilder()
	for _, v := range vendors {
		builder.AddVendor(v)
	}
	for _, rec := range identifiers {
		if err := builder.AddIdentifier(rec); err != nil {
			zap.L().Warn("identity: identifier rejected",
				zap.String("type", string(rec.Type)),
				zap.String("value", rec.Value),
				zap.Error(err))
		}
	}
	for _, a := range aliases {
		builder.AddAlias(a)
	}
	return builder.Snapshot(), nil
}
