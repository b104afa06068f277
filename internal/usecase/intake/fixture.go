package intake

import (
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"licenselink/internal/errs"
)

// FixtureRecord is one regulator record as written in a YAML fixture file.
type FixtureRecord struct {
	Kind            string `yaml:"kind"`
	LicenseNumber   string `yaml:"license_number"`
	ApplicationType string `yaml:"application_type"`
	EventDate       string `yaml:"event_date"`
	BusinessName    string `yaml:"business_name"`
	LicenseType     string `yaml:"license_type"`
}

type fixtureFile struct {
	Records []FixtureRecord `yaml:"records"`
}

// ParseFixture reads a document of the form
//
//	records:
//	  - kind: notification
//	    license_number: "078001"
//	    application_type: RENEWAL
//	    event_date: 2025-06-01
func ParseFixture(r io.Reader) ([]FixtureRecord, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file fixtureFile
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errs.Wrap(err, "decode fixture")
	}

	for i := range file.Records {
		rec := &file.Records[i]
		rec.Kind = strings.TrimSpace(rec.Kind)
		rec.LicenseNumber = strings.TrimSpace(rec.LicenseNumber)
		rec.ApplicationType = strings.TrimSpace(rec.ApplicationType)
		rec.EventDate = strings.TrimSpace(rec.EventDate)
	}
	return file.Records, nil
}
