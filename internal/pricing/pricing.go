/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


// Package pricing holds the per-unit price table and the pure billing
// calculator that maps a communication event to an amount.
package pricing

import (
	"errors"
	"fmt"

	"prepaid-billing-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCommunicationType = errors.New("invalid communication type")
	ErrInvalidDetails           = errors.New("invalid communication details")
)

// InvalidCommunicationTypeError is returned for a kind the table has no price for.
type InvalidCommunicationTypeError struct {
	Kind string
}

func (e *InvalidCommunicationTypeError) Error() string {
	return fmt.Sprintf("invalid communication type: %q", e.Kind)
}

func (e *InvalidCommunicationTypeError) Unwrap() error { return ErrInvalidCommunicationType }

var secondsPerMinute = decimal.NewFromInt(60)

// Table is the static price-per-unit lookup
type Table struct {
	Currency       string
	CallConnection decimal.Decimal
	CallPerMinute  decimal.Decimal
	Sms            decimal.Decimal
	Email          decimal.Decimal
	FaxPerPage     decimal.Decimal
	FileTransfer   decimal.Decimal
}

// DefaultTable returns the standard USD rates.
func DefaultTable() Table {
	return Table{
		Currency:       "USD",
		CallConnection: decimal.RequireFromString("0.10"),
		CallPerMinute:  decimal.RequireFromString("0.05"),
		Sms:            decimal.RequireFromString("0.02"),
		Email:          decimal.RequireFromString("0.01"),
		FaxPerPage:     decimal.RequireFromString("0.15"),
		FileTransfer:   decimal.RequireFromString("0.05"),
	}
}

// Details carries the measurable part of a communication event
type Details struct {
	DurationMinutes decimal.Decimal
	PageCount       int
}

// CallSeconds builds call details from a stored duration in seconds.
func CallSeconds(seconds int64) Details {
	return Details{DurationMinutes: decimal.NewFromInt(seconds).Div(secondsPerMinute)}
}

// BillableMinutes is the call duration rounded up to the next whole minute.
func (d Details) BillableMinutes() int64 {
	return d.DurationMinutes.Ceil().IntPart()
}

// BillablePages is the fax page count, never less than one.
func (d Details) BillablePages() int {
	if d.PageCount < 1 {
		return 1
	}
	return d.PageCount
}

// Price maps a communication event to its amount. It has no side effects.
func (t Table) Price(kind models.CommunicationKind, details Details) (decimal.Decimal, error) {
	switch kind {
	case models.KindCall:
		if details.DurationMinutes.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: negative call duration %s", ErrInvalidDetails, details.DurationMinutes)
		}
		minutes := decimal.NewFromInt(details.BillableMinutes())
		return t.CallConnection.Add(minutes.Mul(t.CallPerMinute)), nil
	case models.KindSms:
		return t.Sms, nil
	case models.KindEmail:
		return t.Email, nil
	case models.KindFileTransfer:
		return t.FileTransfer, nil
	case models.KindFax:
		if details.PageCount < 0 {
			return decimal.Zero, fmt.Errorf("%w: negative page count %d", ErrInvalidDetails, details.PageCount)
		}
		return t.FaxPerPage.Mul(decimal.NewFromInt(int64(details.BillablePages()))), nil
	default:
		return decimal.Zero, &InvalidCommunicationTypeError{Kind: string(kind)}
	}
}

// ParseKind validates a raw kind from an untrusted caller.
func ParseKind(raw string) (models.CommunicationKind, error) {
	kind := models.CommunicationKind(raw)
	switch kind {
	case models.KindCall, models.KindSms, models.KindEmail, models.KindFax, models.KindFileTransfer:
		return kind, nil
	}
	return "", &InvalidCommunicationTypeError{Kind: raw}
}
