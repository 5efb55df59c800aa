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

package pricing

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type tableFile struct {
	Currency       string `yaml:"currency"`
	CallConnection string `yaml:"call_connection"`
	CallPerMinute  string `yaml:"call_per_minute"`
	Sms            string `yaml:"sms"`
	Email          string `yaml:"email"`
	FaxPerPage     string `yaml:"fax_per_page"`
	FileTransfer   string `yaml:"file_transfer"`
}

// LoadTable reads a pricing YAML file. Rates left out of the file keep
// their default value.
func LoadTable(pricingFile string) (Table, error) {
	var pricingPath string
	if filepath.IsAbs(pricingFile) {
		pricingPath = pricingFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return Table{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		pricingPath = filepath.Join(wd, pricingFile)
	}

	data, err := os.ReadFile(pricingPath)
	if err != nil {
		return Table{}, fmt.Errorf("unable to read %s: %w", pricingFile, err)
	}

	return ParseTable(data)
}

// ParseTable parses pricing YAML on top of DefaultTable.
func ParseTable(data []byte) (Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Table{}, fmt.Errorf("unable to parse pricing table: %w", err)
	}

	table := DefaultTable()
	if file.Currency != "" {
		if len(file.Currency) != 3 {
			return Table{}, fmt.Errorf("currency must be an ISO 4217 code, got %q", file.Currency)
		}
		table.Currency = file.Currency
	}

	rates := []struct {
		name  string
		raw   string
		field *decimal.Decimal
	}{
		{"call_connection", file.CallConnection, &table.CallConnection},
		{"call_per_minute", file.CallPerMinute, &table.CallPerMinute},
		{"sms", file.Sms, &table.Sms},
		{"email", file.Email, &table.Email},
		{"fax_per_page", file.FaxPerPage, &table.FaxPerPage},
		{"file_transfer", file.FileTransfer, &table.FileTransfer},
	}
	for _, rate := range rates {
		if rate.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(rate.raw)
		if err != nil {
			return Table{}, fmt.Errorf("invalid rate %s=%q: %w", rate.name, rate.raw, err)
		}
		if value.IsNegative() {
			return Table{}, fmt.Errorf("rate %s must not be negative, got %s", rate.name, value)
		}
		*rate.field = value
	}

	return table, nil
}
