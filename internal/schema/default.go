package schema

// DefaultDescription returns the built-in description of the number-porting
// settlement database. Deployments with a different schema ship their own
// YAML file and point schema.path at it.
func DefaultDescription() Description {
	return Description{
		"customer": {
			Description: "Mobile subscribers that ported their number in or out",
			PrimaryKey:  "customer_id",
			Columns: map[string]Column{
				"customer_id":   {Type: "BIGINT", Description: "Customer identifier"},
				"phone_number":  {Type: "VARCHAR", Description: "Mobile number in 010-XXXX-XXXX form", Sensitive: true},
				"operator_name": {Type: "VARCHAR", Description: "Current carrier, e.g. A통신사, B통신사"},
				"subscribed_at": {Type: "TIMESTAMP", Description: "When the subscription was opened"},
			},
		},
		"settlement_history": {
			Description: "One row per number-porting settlement event",
			PrimaryKey:  "settlement_id",
			Columns: map[string]Column{
				"settlement_id":     {Type: "BIGINT", Description: "Settlement identifier"},
				"customer_id":       {Type: "BIGINT", Description: "Customer the settlement belongs to"},
				"port_type":         {Type: "VARCHAR", Description: "PORT_IN or PORT_OUT"},
				"operator_name":     {Type: "VARCHAR", Description: "Counterparty carrier for the port"},
				"settlement_amount": {Type: "DECIMAL(18,2)", Description: "Settled amount in KRW"},
				"year":              {Type: "INTEGER", Description: "Settlement year"},
				"month":             {Type: "INTEGER", Description: "Settlement month, 1-12"},
				"settled_at":        {Type: "TIMESTAMP", Description: "When the settlement was booked"},
			},
			ForeignKeys: map[string]string{
				"customer_id": "customer.customer_id",
			},
		},
		"fee_detail": {
			Description: "Per-settlement fee line items",
			PrimaryKey:  "fee_id",
			Columns: map[string]Column{
				"fee_id":        {Type: "BIGINT", Description: "Fee line identifier"},
				"settlement_id": {Type: "BIGINT", Description: "Settlement the fee belongs to"},
				"fee_type":      {Type: "VARCHAR", Description: "Fee category, e.g. BASE, USAGE, PENALTY"},
				"fee_amount":    {Type: "DECIMAL(18,2)", Description: "Fee amount in KRW"},
			},
			ForeignKeys: map[string]string{
				"settlement_id": "settlement_history.settlement_id",
			},
		},
		"deposit_ledger": {
			Description: "Deposit movements held against porting settlements",
			PrimaryKey:  "deposit_seq",
			Columns: map[string]Column{
				"deposit_seq":    {Type: "BIGINT", Description: "Ledger sequence number"},
				"customer_id":    {Type: "BIGINT", Description: "Customer the deposit belongs to"},
				"deposit_amount": {Type: "DECIMAL(18,2)", Description: "Deposit amount in KRW"},
				"deposit_date":   {Type: "DATE", Description: "Value date of the movement"},
				"method_code":    {Type: "VARCHAR", Description: "Payment method code"},
			},
			ForeignKeys: map[string]string{
				"customer_id": "customer.customer_id",
			},
		},
	}
}

// Load builds a registry from the configured schema path, falling back to
// the built-in description when no path is set.
func Load(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(DefaultDescription())
	}

	desc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	return NewRegistry(desc)
}
