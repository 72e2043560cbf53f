package devices

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/assettrack/assettrack/internal/platform/httpx"
)

// csvColumns maps lower-cased header names to Input fields.
var csvColumns = map[string]func(*Input) *string{
	"deviceid":            func(in *Input) *string { return &in.DeviceID },
	"imei":                func(in *Input) *string { return &in.IMEI },
	"model":               func(in *Input) *string { return &in.Model },
	"devicetype":          func(in *Input) *string { return &in.DeviceType },
	"devicestatus":        func(in *Input) *string { return &in.DeviceStatus },
	"devicelocation":      func(in *Input) *string { return &in.DeviceLocation },
	"telco":               func(in *Input) *string { return &in.Telco },
	"telcocontractnumber": func(in *Input) *string { return &in.TelcoContractNumber },
	"phone":               func(in *Input) *string { return &in.Phone },
	"contractstart":       func(in *Input) *string { return &in.ContractStart },
	"contractend":         func(in *Input) *string { return &in.ContractEnd },
	"mdm":                 func(in *Input) *string { return &in.MDM },
	"mdmexpiry":           func(in *Input) *string { return &in.MDMExpiry },
}

// ParseCSV reads device rows keyed by a header line using the JSON field names
// (deviceId, imei, ...). Header matching ignores case, spaces and underscores.
// Every row is validated; the first invalid row aborts the parse.
func ParseCSV(r io.Reader) ([]Input, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, httpx.NewError(httpx.ErrValidation, "csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("devices: read csv header: %w", err)
	}

	setters := make([]func(*Input) *string, len(header))
	hasID := false
	for i, name := range header {
		key := strings.ToLower(strings.NewReplacer(" ", "", "_", "").Replace(strings.TrimSpace(name)))
		setters[i] = csvColumns[key]
		if key == "deviceid" {
			hasID = true
		}
	}
	if !hasID {
		return nil, httpx.NewError(httpx.ErrValidation, "csv header must include deviceId")
	}

	var out []Input
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("devices: read csv line %d: %w", line, err)
		}
		var in Input
		for i, value := range record {
			if i < len(setters) && setters[i] != nil {
				*setters[i](&in) = value
			}
		}
		in = in.Normalize()
		if err := httpx.ValidateStruct(in); err != nil {
			return nil, httpx.Errorf(httpx.ErrValidation, "line %d: %s", line, err.Error())
		}
		out = append(out, in)
	}
	return out, nil
}
