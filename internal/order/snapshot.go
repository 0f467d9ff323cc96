package order

import (
	"encoding/json"
	"fmt"
	"io"

	orderDatamodel "github.com/frahmantamala/pagepay/internal/core/datamodel/order"
)

// WriteSnapshot encodes orders as a JSON array of durable records, in the
// given order.
func WriteSnapshot(w io.Writer, orders []*Order) error {
	records := make([]*orderDatamodel.Order, 0, len(orders))
	for _, o := range orders {
		records = append(records, ToDataModel(o))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot and rejects the whole file when any record
// is invalid.
func ReadSnapshot(r io.Reader) ([]*Order, error) {
	var records []*orderDatamodel.Order
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	orders := make([]*Order, 0, len(records))
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("snapshot record %d is null", i)
		}
		o, err := FromDataModel(rec)
		if err != nil {
			return nil, fmt.Errorf("snapshot record %d: %w", i, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}
