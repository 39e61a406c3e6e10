package labels

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/errors"
	"github.com/hvirtala/bottletag-go/internal/volume"
)

func newTestStore(t *testing.T) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	ds := datastore.New(settings)
	require.NoError(t, ds.Open(), "Failed to open database")
	t.Cleanup(func() {
		assert.NoError(t, ds.Close(), "Failed to close datastore")
	})
	return ds
}

func newTestService(t *testing.T, ds datastore.Interface) *Service {
	t.Helper()
	engine := volume.New(volume.Config{
		StandardPourMl:   44.0,
		FullTolerancePct: 3.0,
		LowFillWarnPct:   2.0,
	})
	return NewService(ds, engine, Config{LabelPrefix: "BT-", SuffixLength: 6}, nil, nil)
}

func seedActiveSKU(t *testing.T, ds datastore.Interface, defaultTareG float64) datastore.SKU {
	t.Helper()
	abv := 40.0
	sku := datastore.SKU{
		Code:            "GIN-750",
		Name:            "Gin 750mL",
		NominalVolumeMl: 750,
		DefaultTareG:    defaultTareG,
		ABV:             &abv,
		Active:          true,
	}
	require.NoError(t, ds.CreateSKU(&sku))
	return sku
}

func generateOneLabel(t *testing.T, svc *Service, ds datastore.Interface, skuID uint) datastore.Label {
	t.Helper()
	result, err := svc.GenerateBatch(GenerateRequest{SKUID: skuID, Quantity: 1, ActorID: "tester"})
	require.NoError(t, err)
	require.Len(t, result.Codes, 1)
	label, err := ds.GetLabelByCode(result.Codes[0])
	require.NoError(t, err)
	return label
}

func TestGenerateBatchCreatesLabelsAndEvents(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)

	const quantity = 50
	result, err := svc.GenerateBatch(GenerateRequest{SKUID: sku.ID, Quantity: quantity, Notes: "summer restock", ActorID: "alice"})
	require.NoError(t, err)
	require.Len(t, result.Codes, quantity)
	assert.NotEmpty(t, result.BatchID)

	seen := make(map[string]struct{}, quantity)
	for _, code := range result.Codes {
		assert.True(t, strings.HasPrefix(code, "BT-"), "code %q must carry the prefix", code)

		_, dup := seen[code]
		assert.False(t, dup, "code %q issued twice", code)
		seen[code] = struct{}{}

		label, err := ds.GetLabelByCode(code)
		require.NoError(t, err)
		assert.Equal(t, datastore.StatusUnassigned, label.Status)

		events, err := ds.GetLabelEvents(label.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, datastore.EventCreated, events[0].Type)
		assert.Empty(t, events[0].FromSnapshot, "CREATED has no prior state")
		assert.NotEmpty(t, events[0].ToSnapshot)
	}
}

func TestGenerateBatchRejectsInactiveSKU(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)

	sku := datastore.SKU{Code: "OLD-1", NominalVolumeMl: 700, Active: false}
	require.NoError(t, ds.CreateSKU(&sku))

	_, err := svc.GenerateBatch(GenerateRequest{SKUID: sku.ID, Quantity: 5})
	require.Error(t, err)
	assert.True(t, errors.IsState(err))
}

func TestGenerateBatchRejectsNonPositiveQuantity(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)

	_, err := svc.GenerateBatch(GenerateRequest{SKUID: sku.ID, Quantity: 0})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestGenerateBatchExhaustsBoundedRetries(t *testing.T) {
	ds := newTestStore(t)
	sku := seedActiveSKU(t, ds, 520)

	// A one-character suffix only permits len(codeAlphabet) unique codes, so
	// asking for more must exhaust the 10x attempt budget and abort cleanly.
	engine := volume.New(volume.Config{StandardPourMl: 44})
	svc := NewService(ds, engine, Config{LabelPrefix: "BT-", SuffixLength: 1}, nil, nil)

	_, err := svc.GenerateBatch(GenerateRequest{SKUID: sku.ID, Quantity: len(codeAlphabet) + 10})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))

	// The aborted batch must not leave partial labels behind
	for _, c := range codeAlphabet {
		exists, err := ds.LabelCodeExists("BT-" + string(c))
		require.NoError(t, err)
		assert.False(t, exists)
	}
}

func TestAssignLifecycle(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	// First assignment
	result, err := svc.Assign(AssignRequest{LabelID: label.ID, Location: "main bar", ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusAssigned, result.Status)
	assert.False(t, result.Idempotent)

	// Same location again: idempotent no-op, no new event
	result, err = svc.Assign(AssignRequest{LabelID: label.ID, Location: "main bar", ActorID: "alice"})
	require.NoError(t, err)
	assert.True(t, result.Idempotent)

	events, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	require.Len(t, events, 2, "CREATED + one ASSIGNED, the retry wrote nothing")
	assert.Equal(t, datastore.EventAssigned, events[0].Type)

	// Different location: LOCATION_CHANGED, not ASSIGNED
	result, err = svc.Assign(AssignRequest{LabelID: label.ID, Location: "rooftop bar", ActorID: "alice"})
	require.NoError(t, err)
	assert.False(t, result.Idempotent)

	events, err = ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, datastore.EventLocationChanged, events[0].Type)

	from, err := DecodeSnapshot(events[0].FromSnapshot)
	require.NoError(t, err)
	to, err := DecodeSnapshot(events[0].ToSnapshot)
	require.NoError(t, err)
	assert.Equal(t, "main bar", from.Location)
	assert.Equal(t, "rooftop bar", to.Location)
	assert.Equal(t, datastore.StatusAssigned, from.Status)
	assert.Equal(t, datastore.StatusAssigned, to.Status)
}

func TestRetireIsTerminal(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	status, err := svc.Retire(label.ID, "tag damaged", "alice", "scanner-1")
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusRetired, status)

	eventsBefore, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	require.Equal(t, datastore.EventRetired, eventsBefore[0].Type)

	// Retiring again is a lifecycle conflict, not a crash
	_, err = svc.Retire(label.ID, "again", "alice", "scanner-1")
	require.Error(t, err)
	assert.True(t, errors.IsState(err))

	// Assigning a retired label is illegal and writes nothing
	_, err = svc.Assign(AssignRequest{LabelID: label.ID, Location: "anywhere"})
	require.Error(t, err)
	assert.True(t, errors.IsState(err))

	// Counting a retired label is illegal too
	_, err = svc.RecordCount(CountRequest{LabelID: label.ID, GrossWeightG: 900})
	require.Error(t, err)
	assert.True(t, errors.IsState(err))

	stored, err := ds.GetLabel(label.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusRetired, stored.Status)
	assert.Equal(t, "tag damaged", stored.RetireReason)
	require.NotNil(t, stored.RetiredAt)

	eventsAfter, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	assert.Len(t, eventsAfter, len(eventsBefore), "failed transitions must not write events")
}

func TestRecordCountReferenceScenario(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	result, err := svc.RecordCount(CountRequest{
		LabelID:      label.ID,
		GrossWeightG: 900,
		Location:     "main bar",
		ActorID:      "alice",
		DeviceID:     "scale-2",
	})
	require.NoError(t, err)

	est := result.Measurement
	assert.InDelta(t, 380.0, est.NetLiquidG, 1e-9)
	assert.InDelta(t, 415.03, est.VolumeMl, 0.01)
	assert.InDelta(t, 55.3, est.PercentFull, 0.05)
	assert.Empty(t, est.Warnings)

	// First physical count implies placement
	stored, err := ds.GetLabel(label.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusAssigned, stored.Status)
	assert.Equal(t, "main bar", stored.Location)

	events, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	count := events[0]
	assert.Equal(t, datastore.EventCount, count.Type)
	require.NotNil(t, count.GrossWeightG)
	assert.InDelta(t, 900, *count.GrossWeightG, 1e-9)
	require.NotNil(t, count.NetLiquidG)
	assert.InDelta(t, 380, *count.NetLiquidG, 1e-9)
}

func TestRecordCountRejectedReadingNotPersisted(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	// 400g gross against a 520g tare implies negative fill
	_, err := svc.RecordCount(CountRequest{LabelID: label.ID, GrossWeightG: 400})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	events, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "rejected measurement must not reach the ledger")

	stored, err := ds.GetLabel(label.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusUnassigned, stored.Status, "rejected count must not transition the label")
}

func TestRecordCountIdempotencyKey(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	req := CountRequest{
		LabelID:        label.ID,
		GrossWeightG:   900,
		IdempotencyKey: "offline-7f3a",
		OfflineQueued:  true,
	}

	first, err := svc.RecordCount(req)
	require.NoError(t, err)
	assert.False(t, first.Idempotent)

	second, err := svc.RecordCount(req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.InDelta(t, first.Measurement.VolumeMl, second.Measurement.VolumeMl, 1e-6)
	assert.InDelta(t, first.Measurement.PoursRemaining, second.Measurement.PoursRemaining, 1e-6)

	events, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)

	countEvents := 0
	for _, e := range events {
		if e.Type == datastore.EventCount {
			countEvents++
		}
	}
	assert.Equal(t, 1, countEvents, "duplicate submission must collapse to one COUNT event")
}

func TestRecordCountOverfullPersistsRawPercentAndWarnings(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	// 769.1g net over 0.9156 g/mL is ~840mL in a 750mL bottle: raw ~112%,
	// clamped to 100 with an overfull warning.
	req := CountRequest{
		LabelID:        label.ID,
		GrossWeightG:   1289.1,
		IdempotencyKey: "offline-9c21",
		OfflineQueued:  true,
	}

	first, err := svc.RecordCount(req)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, first.Measurement.PercentFull, 1e-9)
	assert.InDelta(t, 112.0, first.Measurement.RawPercentFull, 0.05)
	assert.Equal(t, []volume.Warning{volume.WarnOverfull}, first.Measurement.Warnings)

	// The COUNT event keeps the unclamped reading and the warning set
	events, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	count := events[0]
	require.Equal(t, datastore.EventCount, count.Type)
	require.NotNil(t, count.RawPercentFull)
	assert.InDelta(t, 112.0, *count.RawPercentFull, 0.05)
	assert.Equal(t, string(volume.WarnOverfull), count.Warnings)

	// The replayed duplicate reconstructs both from the stored event
	second, err := svc.RecordCount(req)
	require.NoError(t, err)
	assert.True(t, second.Idempotent)
	assert.InDelta(t, first.Measurement.RawPercentFull, second.Measurement.RawPercentFull, 1e-6)
	assert.Equal(t, first.Measurement.Warnings, second.Measurement.Warnings)
}

func TestRecordCountTareResolution(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 0) // no default tare
	label := generateOneLabel(t, svc, ds, sku.ID)

	// No override, no calibration, no default: fail closed
	_, err := svc.RecordCount(CountRequest{LabelID: label.ID, GrossWeightG: 900})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "tare not configured")

	// A calibration makes counting possible
	require.NoError(t, svc.Calibrate(sku.ID, datastore.CalibrationMeasuredEmpty, 510, nil, "alice"))
	result, err := svc.RecordCount(CountRequest{LabelID: label.ID, GrossWeightG: 900})
	require.NoError(t, err)
	assert.InDelta(t, 390, result.Measurement.NetLiquidG, 1e-9)

	// An explicit override wins over the calibration
	override := 530.0
	result, err = svc.RecordCount(CountRequest{LabelID: label.ID, GrossWeightG: 900, TareOverrideG: &override})
	require.NoError(t, err)
	assert.InDelta(t, 370, result.Measurement.NetLiquidG, 1e-9)
}

func TestRecordCountIntoSession(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	session := datastore.MeasurementSession{Name: "friday", Location: "main bar"}
	require.NoError(t, ds.CreateSession(&session))

	_, err := svc.RecordCount(CountRequest{LabelID: label.ID, GrossWeightG: 900, SessionID: &session.ID})
	require.NoError(t, err)

	measurements, err := ds.GetSessionMeasurements(session.ID)
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	assert.Equal(t, sku.ID, measurements[0].SKUID)
	assert.InDelta(t, 380, measurements[0].NetLiquidG, 1e-9)
}

func TestScan(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	_, err := svc.Scan("BT-NOPE99", "alice", "phone-1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	result, err := svc.Scan(label.Code, "alice", "phone-1")
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.Equal(t, label.Code, result.Label.Code)

	// The scan itself was logged
	events, err := ds.GetLabelEvents(label.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, datastore.EventScanned, events[0].Type)

	// Scanning a retired label succeeds with a warning
	_, err = svc.Retire(label.ID, "broken", "alice", "")
	require.NoError(t, err)

	result, err = svc.Scan(label.Code, "alice", "phone-1")
	require.NoError(t, err)
	assert.Contains(t, result.Warning, "retired")
}

func TestHistoryReconstructsFinalState(t *testing.T) {
	ds := newTestStore(t)
	svc := newTestService(t, ds)
	sku := seedActiveSKU(t, ds, 520)
	label := generateOneLabel(t, svc, ds, sku.ID)

	_, err := svc.Assign(AssignRequest{LabelID: label.ID, Location: "main bar"})
	require.NoError(t, err)
	_, err = svc.Assign(AssignRequest{LabelID: label.ID, Location: "rooftop bar"})
	require.NoError(t, err)
	_, err = svc.Retire(label.ID, "end of life", "alice", "")
	require.NoError(t, err)

	history, err := svc.History(label.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	// The newest event's to-snapshot must match the stored label state
	to, err := DecodeSnapshot(history[0].ToSnapshot)
	require.NoError(t, err)

	stored, err := ds.GetLabel(label.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Status, to.Status)
	assert.Equal(t, stored.Location, to.Location)

	// Each event's from-snapshot chains to the previous event's to-snapshot
	for i := 0; i+1 < len(history); i++ {
		from, err := DecodeSnapshot(history[i].FromSnapshot)
		require.NoError(t, err)
		prevTo, err := DecodeSnapshot(history[i+1].ToSnapshot)
		require.NoError(t, err)
		assert.Equal(t, prevTo, from, "snapshot chain broken at %d", i)
	}
}
