package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/npsettle/portquery/internal/errors"
)

var seedDDL = []string{
	`CREATE TABLE IF NOT EXISTS customer (
		customer_id   BIGINT PRIMARY KEY,
		phone_number  VARCHAR NOT NULL,
		operator_name VARCHAR NOT NULL,
		subscribed_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_history (
		settlement_id     BIGINT PRIMARY KEY,
		customer_id       BIGINT NOT NULL,
		port_type         VARCHAR NOT NULL,
		operator_name     VARCHAR NOT NULL,
		settlement_amount DECIMAL(18,2) NOT NULL,
		year              INTEGER NOT NULL,
		month             INTEGER NOT NULL,
		settled_at        TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fee_detail (
		fee_id        BIGINT PRIMARY KEY,
		settlement_id BIGINT NOT NULL,
		fee_type      VARCHAR NOT NULL,
		fee_amount    DECIMAL(18,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS deposit_ledger (
		deposit_seq    BIGINT PRIMARY KEY,
		customer_id    BIGINT NOT NULL,
		deposit_amount DECIMAL(18,2) NOT NULL,
		deposit_date   DATE NOT NULL,
		method_code    VARCHAR NOT NULL
	)`,
}

var (
	seedOperators   = []string{"KT", "SKT", "LGU+", "MVNO", "A통신사", "B통신사"}
	seedFeeTypes    = []string{"BASE", "USAGE", "PENALTY"}
	seedMethodCodes = []string{"BANK", "CARD", "CASH"}
)

const (
	seedCustomerCount = 48
	seedStartYear     = 2023
	seedStartMonth    = 7
	seedMonthCount    = 12 // 2023-07 through 2024-06
)

// Seed creates the settlement tables and fills them with deterministic
// sample data so the tool works end to end without a production extract.
// Existing sample rows are replaced.
func (e *Executor) Seed(ctx context.Context) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin seed transaction")
	}

	defer func() {
		_ = tx.Rollback()
	}()

	for _, ddl := range seedDDL {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return errors.Wrap(err, errors.ErrTypeDatabase, "failed to create sample tables")
		}
	}

	for _, tbl := range []string{"fee_detail", "deposit_ledger", "settlement_history", "customer"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tbl); err != nil {
			return errors.Wrap(err, errors.ErrTypeDatabase, "failed to clear sample tables")
		}
	}

	if err := seedRows(ctx, tx); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to insert sample data")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit sample data")
	}

	return nil
}

// seedRows generates the sample rows. Values are formulaic, not random, so
// repeated seeds and test assertions see identical data.
func seedRows(ctx context.Context, tx *sql.Tx) error {
	for id := 1; id <= seedCustomerCount; id++ {
		operator := seedOperators[(id-1)%len(seedOperators)]
		phone := fmt.Sprintf("010-%04d-%04d", 1000+id, 5000+id)
		subscribed := time.Date(2022, time.Month((id-1)%12+1), (id-1)%28+1, 9, 0, 0, 0, time.UTC)

		_, err := tx.ExecContext(ctx,
			"INSERT INTO customer (customer_id, phone_number, operator_name, subscribed_at) VALUES (?, ?, ?, ?)",
			id, phone, operator, subscribed)
		if err != nil {
			return err
		}
	}

	settlementID := 0
	feeID := 0

	for m := 0; m < seedMonthCount; m++ {
		year := seedStartYear + (seedStartMonth-1+m)/12
		month := (seedStartMonth-1+m)%12 + 1

		for id := 1; id <= seedCustomerCount; id++ {
			// roughly two thirds of subscribers settle in a given month
			if (id+m)%3 == 0 {
				continue
			}

			settlementID++

			portType := "PORT_IN"
			if (id+m)%2 == 0 {
				portType = "PORT_OUT"
			}

			operator := seedOperators[(id+m)%len(seedOperators)]
			amount := float64(10000 + (id*700+m*1300)%90000)
			settledAt := time.Date(year, time.Month(month), (id-1)%27+1, 14, 0, 0, 0, time.UTC)

			_, err := tx.ExecContext(ctx,
				`INSERT INTO settlement_history
				 (settlement_id, customer_id, port_type, operator_name, settlement_amount, year, month, settled_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				settlementID, id, portType, operator, amount, year, month, settledAt)
			if err != nil {
				return err
			}

			for f := 0; f < 2; f++ {
				feeID++

				_, err := tx.ExecContext(ctx,
					"INSERT INTO fee_detail (fee_id, settlement_id, fee_type, fee_amount) VALUES (?, ?, ?, ?)",
					feeID, settlementID, seedFeeTypes[(settlementID+f)%len(seedFeeTypes)],
					float64(500+(settlementID*130+f*270)%4500))
				if err != nil {
					return err
				}
			}
		}
	}

	depositSeq := 0

	for m := 0; m < seedMonthCount; m++ {
		year := seedStartYear + (seedStartMonth-1+m)/12
		month := (seedStartMonth-1+m)%12 + 1

		for id := 1; id <= seedCustomerCount; id += 4 {
			depositSeq++

			_, err := tx.ExecContext(ctx,
				"INSERT INTO deposit_ledger (deposit_seq, customer_id, deposit_amount, deposit_date, method_code) VALUES (?, ?, ?, ?, ?)",
				depositSeq, id, float64(50000+(id*900+m*2100)%150000),
				time.Date(year, time.Month(month), (id-1)%27+1, 0, 0, 0, 0, time.UTC),
				seedMethodCodes[(id+m)%len(seedMethodCodes)])
			if err != nil {
				return err
			}
		}
	}

	return nil
}
