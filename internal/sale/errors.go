package sale

import (
	"errors"
	"fmt"
)

// Kind classifies why a sale did not complete
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindInvalidQuantity
	KindProductNotFound
	KindUnauthorized
	KindInsufficientStock
	KindPersistenceFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidQuantity:
		return "invalid_quantity"
	case KindProductNotFound:
		return "product_not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindPersistenceFailed:
		return "persistence_failed"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by ProcessSale. ProductID is set when a
// single cart line caused it.
type Error struct {
	Kind        Kind
	ProductID   uint
	ProductName string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.ProductID != 0 {
		msg = fmt.Sprintf("%s: product %d", msg, e.ProductID)
		if e.ProductName != "" {
			msg = fmt.Sprintf("%s (%s)", msg, e.ProductName)
		}
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a sale error, or KindUnknown for anything else
func KindOf(err error) Kind {
	var saleErr *Error
	if errors.As(err, &saleErr) {
		return saleErr.Kind
	}
	return KindUnknown
}

// Cashier-facing messages
const (
	MsgIncompleteInput     = "Anda belum memasukkan data dengan lengkap!"
	MsgInvalidQuantity     = "Jumlah barang yang dibeli tidak boleh kosong!"
	MsgInsufficientStock   = "Barang melebihi batas stock!"
	MsgProductNotFound     = "Barang tidak ditemukan!"
	MsgUnauthorized        = "Anda tidak memiliki akses ke barang ini!"
	MsgPersistenceFailed   = "Transaksi gagal disimpan, silakan coba lagi!"
	MsgTransactionNotFound = "Transaksi tidak ditemukan!"
	MsgInternal            = "Terjadi kesalahan pada sistem!"
)

// MessageFor returns the cashier-facing message for a kind
func MessageFor(kind Kind) string {
	switch kind {
	case KindInvalidInput:
		return MsgIncompleteInput
	case KindInvalidQuantity:
		return MsgInvalidQuantity
	case KindInsufficientStock:
		return MsgInsufficientStock
	case KindProductNotFound:
		return MsgProductNotFound
	case KindUnauthorized:
		return MsgUnauthorized
	case KindPersistenceFailed:
		return MsgPersistenceFailed
	default:
		return MsgInternal
	}
}

// Message returns the cashier-facing message for err without internal detail
func Message(err error) string {
	return MessageFor(KindOf(err))
}
