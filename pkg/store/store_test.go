package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrowhead-f/confsys/pkg/acml"
	"github.com/arrowhead-f/confsys/pkg/apes"
	"github.com/arrowhead-f/confsys/pkg/directory"
	"github.com/arrowhead-f/confsys/pkg/events"
)

func testStore(t *testing.T) *Service {
	t.Helper()
	dir, err := directory.Open(t.TempDir(), &directory.Options{MapSize: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { dir.Close() })

	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	return New(dir, broker)
}

func portTemplate(t *testing.T) apes.Value {
	t.Helper()
	v, err := apes.DecodeJSON([]byte(`{
		"name": "service.config",
		"body": {
			"type": "Map",
			"entries": {"port": {"type": "Number", "conditions": ["Min(1)", "Max(65535)"]}}
		}
	}`))
	require.NoError(t, err)
	return v
}

func portDocument(name string, port float64) acml.Document {
	return acml.Document{
		Name:     name,
		Template: "service.config",
		Body:     apes.Map(apes.Entry{Key: "port", Value: apes.Number(port)}),
	}
}

// TestAddListRemoveDocuments tests the basic document lifecycle
func TestAddListRemoveDocuments(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.AddTemplates([]apes.Value{portTemplate(t)}))

	reports, err := s.AddDocuments([]acml.Document{portDocument("svc1", 80), portDocument("svc2", 443)})
	require.NoError(t, err)
	for _, report := range reports {
		require.True(t, report.Sound())
	}

	docs, err := s.ListDocuments(nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "svc1", docs[0].Name)
	require.Equal(t, "svc2", docs[1].Name)

	docs, err = s.ListDocuments([]string{"svc2"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "svc2", docs[0].Name)

	require.NoError(t, s.RemoveDocuments([]string{"svc1"}))
	docs, err = s.ListDocuments(nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

// TestAddUnsoundDocumentWritesNothing tests validation gating
func TestAddUnsoundDocumentWritesNothing(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.AddTemplates([]apes.Value{portTemplate(t)}))

	reports, err := s.AddDocuments([]acml.Document{
		portDocument("good", 80),
		portDocument("bad", 0), // violates Min(1)
	})
	require.NoError(t, err)
	require.True(t, reports[0].Sound())
	require.False(t, reports[1].Sound())

	// The sound document must not have been written either.
	docs, err := s.ListDocuments(nil)
	require.NoError(t, err)
	require.Empty(t, docs)
}

// TestAddDocumentUnknownTemplate tests the template-absent violation
func TestAddDocumentUnknownTemplate(t *testing.T) {
	s := testStore(t)

	reports, err := s.AddDocuments([]acml.Document{portDocument("svc1", 80)})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.False(t, reports[0].Sound())
	require.Equal(t, "template != undefined", reports[0].Violations[0].Condition)
}

// TestPatchDocuments tests the full PATCH flow
func TestPatchDocuments(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.AddTemplates([]apes.Value{portTemplate(t)}))
	_, err := s.AddDocuments([]acml.Document{portDocument("svc1", 80)})
	require.NoError(t, err)

	reports, err := s.PatchDocuments([]acml.Patch{
		{Name: "svc1", Path: "port", Data: apes.Number(8080)},
	})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.True(t, reports[0].Sound())

	docs, err := s.ListDocuments([]string{"svc1"})
	require.NoError(t, err)
	port, ok := docs[0].Body.Get("port")
	require.True(t, ok)
	require.True(t, port.Equal(apes.Number(8080)))
}

// TestPatchMissingDocument tests the synthetic DocumentExists violation
func TestPatchMissingDocument(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.AddTemplates([]apes.Value{portTemplate(t)}))
	_, err := s.AddDocuments([]acml.Document{portDocument("svc1", 80)})
	require.NoError(t, err)

	reports, err := s.PatchDocuments([]acml.Patch{
		{Name: "ghost", Path: "port", Data: apes.Number(1)},
		{Name: "svc1", Path: "port", Data: apes.Number(8080)},
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.Equal(t, `DocumentExists("ghost")`, reports[0].Violations[0].Condition)

	// One violation anywhere blocks every write.
	docs, err := s.ListDocuments([]string{"svc1"})
	require.NoError(t, err)
	port, _ := docs[0].Body.Get("port")
	require.True(t, port.Equal(apes.Number(80)), "patch must not have been applied")
}

// TestPatchUnsoundRollsBack tests that a patch violating the template
// writes nothing
func TestPatchUnsoundRollsBack(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.AddTemplates([]apes.Value{portTemplate(t)}))
	_, err := s.AddDocuments([]acml.Document{portDocument("svc1", 80)})
	require.NoError(t, err)

	reports, err := s.PatchDocuments([]acml.Patch{
		{Name: "svc1", Path: "port", Data: apes.Text("not a port")},
	})
	require.NoError(t, err)
	require.False(t, reports[0].Sound())

	docs, err := s.ListDocuments([]string{"svc1"})
	require.NoError(t, err)
	port, _ := docs[0].Body.Get("port")
	require.True(t, port.Equal(apes.Number(80)))
}

// TestTemplates tests the template lifecycle and parse gating
func TestTemplates(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.AddTemplates([]apes.Value{portTemplate(t)}))

	values, err := s.ListTemplates(nil)
	require.NoError(t, err)
	require.Len(t, values, 1)

	bad, err := apes.DecodeJSON([]byte(`{"name":"broken","body":{"type":"Nope"}}`))
	require.NoError(t, err)
	require.Error(t, s.AddTemplates([]apes.Value{bad}))

	require.NoError(t, s.RemoveTemplates([]string{"service.config"}))
	values, err = s.ListTemplates(nil)
	require.NoError(t, err)
	require.Empty(t, values)
}

// TestEventsEmitted tests that mutations publish events
func TestEventsEmitted(t *testing.T) {
	dir, err := directory.Open(t.TempDir(), &directory.Options{MapSize: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { dir.Close() })

	broker := events.NewBroker()
	t.Cleanup(broker.Close)
	sub := broker.Subscribe(events.CategoryTemplate)

	s := New(dir, broker)
	require.NoError(t, s.AddTemplates([]apes.Value{portTemplate(t)}))

	event := <-sub.C
	require.Equal(t, events.EventTemplateAdded, event.Type)
	require.Equal(t, "service.config", event.Subject)
}
