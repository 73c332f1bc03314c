package store

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arrowhead-f/confsys/pkg/acml"
	"github.com/arrowhead-f/confsys/pkg/apes"
	"github.com/arrowhead-f/confsys/pkg/directory"
	"github.com/arrowhead-f/confsys/pkg/events"
	"github.com/arrowhead-f/confsys/pkg/log"
)

// Bucket prefixes inside the directory. The directory itself is
// namespace-agnostic; these are the store's convention.
const (
	BucketDocuments = ".d"
	BucketTemplates = ".t"
)

// Service is the configuration store: documents and templates kept in the
// directory as canonical JSON, guarded by the validator. Mutations that
// leave any document unsound are not written.
type Service struct {
	dir    directory.Directory
	broker *events.Broker
	logger zerolog.Logger
}

// New creates a store over the given directory. The broker may be nil.
func New(dir directory.Directory, broker *events.Broker) *Service {
	return &Service{
		dir:    dir,
		broker: broker,
		logger: log.WithComponent("store"),
	}
}

// AddDocuments validates the documents against the stored templates and,
// when every report is sound, writes them in one transaction. The reports
// are returned either way; nothing is written unless all are sound.
func (s *Service) AddDocuments(docs []acml.Document) ([]acml.Report, error) {
	var reports []acml.Report
	err := s.dir.Write(func(w directory.Writer) error {
		templates, err := loadTemplates(w)
		if err != nil {
			return err
		}

		reports = acml.ValidateAll(docs, templates)
		for _, report := range reports {
			if !report.Sound() {
				return errUnsound
			}
		}
		return writeDocuments(w, docs)
	})
	if err == errUnsound {
		return reports, nil
	}
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		s.emit(events.EventDocumentAdded, doc.Name)
	}
	return reports, nil
}

// ListDocuments returns the documents matched by names, or every document
// when names is empty.
func (s *Service) ListDocuments(names []string) ([]acml.Document, error) {
	var docs []acml.Document
	err := s.dir.Read(func(r directory.Reader) error {
		var err error
		docs, err = readDocuments(r, names)
		return err
	})
	return docs, err
}

// RemoveDocuments deletes the documents matched by names.
func (s *Service) RemoveDocuments(names []string) error {
	err := s.dir.Write(func(w directory.Writer) error {
		return w.Remove(bucketPaths(BucketDocuments, names))
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		s.emit(events.EventDocumentRemoved, name)
	}
	return nil
}

// PatchDocuments applies patches inside one write transaction: the
// matching documents are read, mutated, and re-validated as a set. A patch
// without a matching document contributes a synthetic DocumentExists
// violation. When the aggregate violation count is zero the mutated
// documents are written back; otherwise nothing is.
func (s *Service) PatchDocuments(patches []acml.Patch) ([]acml.Report, error) {
	var reports []acml.Report
	err := s.dir.Write(func(w directory.Writer) error {
		reports = nil

		templates, err := loadTemplates(w)
		if err != nil {
			return err
		}

		var names []string
		for _, patch := range patches {
			names = append(names, patch.Name)
		}
		existing, err := readDocuments(w, names)
		if err != nil {
			return err
		}
		byName := make(map[string]acml.Document, len(existing))
		for _, doc := range existing {
			byName[doc.Name] = doc
		}

		// Apply in order; a missing target becomes a synthetic violation.
		var order []string
		mutated := make(map[string]bool)
		for _, patch := range patches {
			doc, ok := byName[patch.Name]
			if !ok {
				reports = append(reports, acml.Report{
					DocumentName: patch.Name,
					Violations: []acml.Violation{
						{Condition: fmt.Sprintf("DocumentExists(%q)", patch.Name)},
					},
				})
				continue
			}
			patched, err := patch.Apply(doc)
			if err != nil {
				return err
			}
			byName[patch.Name] = patched
			if !mutated[patch.Name] {
				mutated[patch.Name] = true
				order = append(order, patch.Name)
			}
		}

		docs := make([]acml.Document, 0, len(order))
		for _, name := range order {
			docs = append(docs, byName[name])
		}
		reports = append(reports, acml.ValidateAll(docs, templates)...)

		for _, report := range reports {
			if !report.Sound() {
				return errUnsound
			}
		}
		return writeDocuments(w, docs)
	})
	if err == errUnsound {
		return reports, nil
	}
	if err != nil {
		return nil, err
	}

	for _, patch := range patches {
		s.emit(events.EventDocumentPatched, patch.Name)
	}
	return reports, nil
}

// AddTemplates parses and stores templates. A template that does not
// parse fails the whole call and nothing is written.
func (s *Service) AddTemplates(values []apes.Value) error {
	var names []string
	err := s.dir.Write(func(w directory.Writer) error {
		entries := make([]directory.Entry, 0, len(values))
		for _, value := range values {
			template, err := acml.TemplateFromValue(value)
			if err != nil {
				return err
			}
			data, err := apes.EncodeJSON(value)
			if err != nil {
				return err
			}
			entries = append(entries, directory.Entry{
				Path:  BucketTemplates + "." + template.Name,
				Value: data,
			})
			names = append(names, template.Name)
		}
		return w.Add(entries)
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		s.emit(events.EventTemplateAdded, name)
	}
	return nil
}

// ListTemplates returns templates by name, or all of them.
func (s *Service) ListTemplates(names []string) ([]apes.Value, error) {
	var values []apes.Value
	err := s.dir.Read(func(r directory.Reader) error {
		entries, err := r.List(bucketPaths(BucketTemplates, names))
		if err != nil {
			return err
		}
		for _, entry := range entries {
			value, err := apes.DecodeJSON(entry.Value)
			if err != nil {
				return fmt.Errorf("store: entry %s: %w", entry.Path, err)
			}
			values = append(values, value)
		}
		return nil
	})
	return values, err
}

// RemoveTemplates deletes templates by name.
func (s *Service) RemoveTemplates(names []string) error {
	err := s.dir.Write(func(w directory.Writer) error {
		return w.Remove(bucketPaths(BucketTemplates, names))
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		s.emit(events.EventTemplateRemoved, name)
	}
	return nil
}

// ValidateDocuments runs the validator over stored documents without
// writing anything.
func (s *Service) ValidateDocuments(names []string) ([]acml.Report, error) {
	var reports []acml.Report
	err := s.dir.Read(func(r directory.Reader) error {
		docs, err := readDocuments(r, names)
		if err != nil {
			return err
		}
		templates, err := loadTemplates(r)
		if err != nil {
			return err
		}
		reports = acml.ValidateAll(docs, templates)
		return nil
	})
	return reports, err
}

func (s *Service) emit(eventType events.EventType, subject string) {
	if s.broker != nil {
		s.broker.Publish(events.New(eventType, subject))
	}
	s.logger.Debug().Str("event", string(eventType)).Str("subject", subject).Msg("store mutation")
}

// readDocuments lists and decodes documents inside an open transaction.
func readDocuments(r directory.Reader, names []string) ([]acml.Document, error) {
	entries, err := r.List(bucketPaths(BucketDocuments, names))
	if err != nil {
		return nil, err
	}
	docs := make([]acml.Document, 0, len(entries))
	for _, entry := range entries {
		value, err := apes.DecodeJSON(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("store: entry %s: %w", entry.Path, err)
		}
		doc, err := acml.DocumentFromValue(value)
		if err != nil {
			return nil, fmt.Errorf("store: entry %s: %w", entry.Path, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// writeDocuments serializes documents into the document bucket.
func writeDocuments(w directory.Writer, docs []acml.Document) error {
	entries := make([]directory.Entry, 0, len(docs))
	for _, doc := range docs {
		value, err := apes.EncodeJSON(acml.DocumentToValue(doc))
		if err != nil {
			return err
		}
		entries = append(entries, directory.Entry{
			Path:  BucketDocuments + "." + doc.Name,
			Value: value,
		})
	}
	return w.Add(entries)
}

// loadTemplates reads the whole template registry inside an open
// transaction.
func loadTemplates(r directory.Reader) (map[string]acml.Template, error) {
	entries, err := r.List([]string{BucketTemplates + "."})
	if err != nil {
		return nil, err
	}
	registry := make(map[string]acml.Template, len(entries))
	for _, entry := range entries {
		value, err := apes.DecodeJSON(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("store: entry %s: %w", entry.Path, err)
		}
		template, err := acml.TemplateFromValue(value)
		if err != nil {
			return nil, fmt.Errorf("store: entry %s: %w", entry.Path, err)
		}
		registry[template.Name] = template
	}
	return registry, nil
}

// bucketPaths maps names to bucket keys; an empty name set addresses the
// whole bucket.
func bucketPaths(bucket string, names []string) []string {
	if len(names) == 0 {
		return []string{bucket + "."}
	}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, bucket+"."+name)
	}
	return paths
}

// errUnsound aborts a write transaction that produced violations; the
// caller returns the reports instead of an error.
var errUnsound = fmt.Errorf("store: unsound documents")
