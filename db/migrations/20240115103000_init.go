package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/craftbill/billinghub.go/db/models"
)

/* Since this init will reflect the latest model fields when run on fresh db
make sure that when you add/remove columns in subsequent migrations IfNotExists/IfExists is used
otherwise it's going to result in errors.
*/
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if _, err := db.NewCreateTable().Model((*models.Account)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.BankAccount)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.HourlyRate)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.InvoiceTemplate)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Invoice)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.InvoiceChange)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.LineItem)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.TransferWiseBulkPayment)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.TransferWisePayment)(nil)).Exec(ctx); err != nil {
			return err
		}

		if _, err := db.NewCreateIndex().Model((*models.LineItem)(nil)).
			Index("line_items_invoice_item_key_idx").Unique().
			Column("invoice_id", "line_item_id", "key").Exec(ctx); err != nil {
			return err
		}
		// one active rate per (provider, client) pair
		if _, err := db.NewCreateIndex().Model((*models.HourlyRate)(nil)).
			Index("hourly_rates_active_pair_idx").Unique().
			Column("provider_id", "client_id").
			Where("active").Exec(ctx); err != nil {
			return err
		}

		return nil
	}, nil)
}
