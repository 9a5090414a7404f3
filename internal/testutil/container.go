package testutil

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/dolt"
)

// doltImage is the sql-server image used when no local dolt binary exists.
const doltImage = "dolthub/dolt-sql-server:1.32.4"

// StartDoltContainer runs a Dolt sql-server in Docker and returns a driver
// configuration for it together with a cleanup function. It fails when no
// container runtime is reachable.
func StartDoltContainer(ctx context.Context) (*mysql.Config, func(), error) {
	ctr, err := dolt.Run(ctx, doltImage,
		dolt.WithDatabase("kwsub"),
		dolt.WithUsername("kwsub"),
		dolt.WithPassword("kwsub"),
	)
	if err != nil {
		if ctr != nil {
			_ = testcontainers.TerminateContainer(ctr)
		}
		return nil, func() {}, fmt.Errorf("starting dolt container: %w", err)
	}
	cleanup := func() { _ = testcontainers.TerminateContainer(ctr) }

	dsn, err := ctr.ConnectionString(ctx)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("dolt container connection string: %w", err)
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("parsing dolt container dsn: %w", err)
	}
	return cfg, cleanup, nil
}
