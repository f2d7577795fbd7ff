package main

import (
	"context"
	"flag"
	"os"

	"go-customs-ledger/internal/model"
	"go-customs-ledger/internal/repository"
	"go-customs-ledger/internal/service"
	"go-customs-ledger/pkg/config"
	"go-customs-ledger/pkg/database"
	"go-customs-ledger/pkg/logger"

	"github.com/sirupsen/logrus"
)

func main() {
	fix := flag.Bool("fix", false, "rewrite drifting cached quantities with the ledger-derived values")
	actor := flag.String("actor", "reconcile", "name recorded in updated_by when fixing")
	flag.Parse()

	// 1. Load Env
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if !cfg.EnvFileLoaded {
		log.Warn(".env file not found, using process environment")
	}

	// 2. Setup Database
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := model.Migrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	balance := service.NewBalanceService(db,
		repository.NewProductRepo(db),
		repository.NewDocumentRepo(db),
		repository.NewAllocationRepo(db),
		nil,
	)

	// 3. Compare or repair
	ctx := context.Background()
	var drifted []model.StockSnapshot
	if *fix {
		drifted, err = balance.RepairStock(ctx, *actor)
	} else {
		drifted, err = balance.CheckConsistency(ctx)
	}
	if err != nil {
		log.WithError(err).Fatal("consistency check failed")
	}

	for _, snap := range drifted {
		log.WithFields(logrus.Fields{
			"product_code":        snap.ProductCode,
			"cached_qty":          snap.CachedQty.String(),
			"derived_qty":         snap.DerivedQty.String(),
			"cached_package_qty":  snap.CachedPackageQty.String(),
			"derived_package_qty": snap.DerivedPackageQty.String(),
			"fixed":               *fix,
		}).Warn("stock drift")
	}

	if len(drifted) == 0 {
		log.Info("registry matches ledger")
		return
	}
	if *fix {
		log.WithField("products", len(drifted)).Info("registry repaired")
		return
	}
	os.Exit(1)
}
