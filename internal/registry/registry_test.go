package registry_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
	"github.com/gosuda/evidra/internal/registry"
	"github.com/gosuda/evidra/internal/store/memory"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func newActor(tenantID uuid.UUID, role string) domain.Actor {
	return domain.Actor{
		TenantID:   tenantID,
		UserID:     uuid.New(),
		Email:      "declarant@example.com",
		Role:       role,
		AuthMethod: domain.AuthMethodSession,
	}
}

// sealRecord creates and seals an emissions record for actor's tenant.
func sealRecord(t *testing.T, svc *evidence.Service, actor domain.Actor) *domain.EvidenceRecord {
	t.Helper()

	ctx := context.Background()
	d, _, err := svc.CreateDraft(ctx, actor, evidence.CreateRequest{
		RequestID:       uuid.NewString(),
		IngestionMethod: "MANUAL_ENTRY",
		DatasetType:     "EMISSIONS_DATA",
		DeclaredScope:   "ENTIRE_ORGANIZATION",
		Purpose:         "embedded emissions for Q1 steel imports",
		Payload:         map[string]any{"installation": "TR-IZM-01", "direct_tco2e": 18.4},
	})
	require.NoError(t, err)

	rec, _, err := svc.SealDraft(ctx, actor, d.ID, "")
	require.NoError(t, err)
	return rec
}

func validDeclaration(evidenceIDs ...uuid.UUID) registry.Declaration {
	return registry.Declaration{
		EORI:            "FR123456789000",
		DeclarantName:   "Acier Import SAS",
		ReportingPeriod: "2026Q1",
		Goods: []registry.GoodsLine{
			{
				CNCode:                 "72081000",
				OriginCountry:          "TR",
				NetMassTonnes:          12.5,
				DirectEmissionsTCO2e:   18.4,
				IndirectEmissionsTCO2e: 2.1,
				EvidenceIDs:            evidenceIDs,
			},
			{
				CNCode:                 "76011000",
				OriginCountry:          "IN",
				NetMassTonnes:          7.25,
				DirectEmissionsTCO2e:   11,
				IndirectEmissionsTCO2e: 0,
				EvidenceIDs:            evidenceIDs,
			},
		},
	}
}

func requireCode(t *testing.T, err error, code domain.ErrorCode) {
	t.Helper()

	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de), "expected *domain.Error, got %T: %v", err, err)
	assert.Equal(t, code, de.Code)
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		action   string
		wantType registry.Action
		wantCode domain.ErrorCode
	}{
		{name: "validate", action: "validate", wantType: registry.ValidateDeclaration{}},
		{name: "generate", action: "generate", wantType: registry.GenerateDeclaration{}},
		{name: "missing", action: "", wantCode: domain.CodeMissingRequiredMetadata},
		{name: "unknown", action: "submit", wantCode: domain.CodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, err := registry.ParseAction(tt.action, registry.Declaration{})
			if tt.wantCode != "" {
				requireCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, a)
			assert.Equal(t, tt.action, a.Name())
		})
	}
}

func TestDeclaration_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(d *registry.Declaration)
		wantField string
	}{
		{name: "missing eori", mutate: func(d *registry.Declaration) { d.EORI = "" }, wantField: "eori"},
		{name: "malformed eori", mutate: func(d *registry.Declaration) { d.EORI = "123" }, wantField: "eori"},
		{name: "missing declarant", mutate: func(d *registry.Declaration) { d.DeclarantName = "" }, wantField: "declarant_name"},
		{name: "bad period", mutate: func(d *registry.Declaration) { d.ReportingPeriod = "2026-03" }, wantField: "reporting_period"},
		{name: "quarter out of range", mutate: func(d *registry.Declaration) { d.ReportingPeriod = "2026Q5" }, wantField: "reporting_period"},
		{name: "no goods", mutate: func(d *registry.Declaration) { d.Goods = nil }, wantField: "goods"},
		{name: "short cn code", mutate: func(d *registry.Declaration) { d.Goods[0].CNCode = "7208" }, wantField: "goods[0].cn_code"},
		{name: "cn code outside cbam", mutate: func(d *registry.Declaration) { d.Goods[0].CNCode = "61091000" }, wantField: "goods[0].cn_code"},
		{name: "eu origin", mutate: func(d *registry.Declaration) { d.Goods[1].OriginCountry = "DE" }, wantField: "goods[1].origin_country"},
		{name: "bad country", mutate: func(d *registry.Declaration) { d.Goods[1].OriginCountry = "Turkey" }, wantField: "goods[1].origin_country"},
		{name: "zero mass", mutate: func(d *registry.Declaration) { d.Goods[0].NetMassTonnes = 0 }, wantField: "goods[0].net_mass_tonnes"},
		{name: "negative direct", mutate: func(d *registry.Declaration) { d.Goods[0].DirectEmissionsTCO2e = -1 }, wantField: "goods[0].direct_emissions_tco2e"},
		{name: "negative indirect", mutate: func(d *registry.Declaration) { d.Goods[1].IndirectEmissionsTCO2e = -0.5 }, wantField: "goods[1].indirect_emissions_tco2e"},
		{name: "no evidence", mutate: func(d *registry.Declaration) { d.Goods[1].EvidenceIDs = nil }, wantField: "goods[1].evidence_ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := validDeclaration(uuid.New())
			tt.mutate(&d)
			d.Normalize()

			issues := d.Check()
			require.Len(t, issues, 1, "issues: %v", issues)
			assert.Equal(t, tt.wantField, issues[0].Field)
		})
	}
}

func TestDeclaration_Normalize(t *testing.T) {
	t.Parallel()

	d := validDeclaration(uuid.New())
	d.EORI = " fr123456789000 "
	d.ReportingPeriod = "2026q1"
	d.Goods[0].CNCode = "7208 1000"
	d.Goods[0].OriginCountry = "tr"

	d.Normalize()

	assert.Equal(t, "FR123456789000", d.EORI)
	assert.Equal(t, "2026Q1", d.ReportingPeriod)
	assert.Equal(t, "72081000", d.Goods[0].CNCode)
	assert.Equal(t, "TR", d.Goods[0].OriginCountry)
	assert.Empty(t, d.Check())
}

func TestService_Validate(t *testing.T) {
	t.Parallel()

	store := memory.New()
	evSvc := evidence.NewService(store, evidence.Config{})
	svc := registry.NewService(store)

	actor := newActor(uuid.New(), domain.RoleViewer)
	writer := newActor(actor.TenantID, domain.RoleMember)
	rec := sealRecord(t, evSvc, writer)

	outsider := newActor(uuid.New(), domain.RoleMember)
	foreign := sealRecord(t, evSvc, outsider)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		res, err := svc.Handle(context.Background(), actor, registry.ValidateDeclaration{Declaration: validDeclaration(rec.ID)})
		require.NoError(t, err)
		assert.Equal(t, registry.ActionValidate, res.Action)
		assert.True(t, res.Valid)
		assert.Empty(t, res.Issues)
		assert.Empty(t, res.Document, "validate never renders")
	})

	t.Run("unknown evidence", func(t *testing.T) {
		t.Parallel()

		res, err := svc.Handle(context.Background(), actor, registry.ValidateDeclaration{Declaration: validDeclaration(uuid.New())})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		require.NotEmpty(t, res.Issues)
		assert.Equal(t, "goods[0].evidence_ids", res.Issues[0].Field)
	})

	t.Run("other tenant's evidence", func(t *testing.T) {
		t.Parallel()

		res, err := svc.Handle(context.Background(), actor, registry.ValidateDeclaration{Declaration: validDeclaration(foreign.ID)})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		require.Len(t, res.Issues, 1, "a repeated id is reported once")
		assert.Contains(t, res.Issues[0].Message, "not a sealed record of this tenant")
	})
}

func TestService_Generate(t *testing.T) {
	t.Parallel()

	store := memory.New()
	evSvc := evidence.NewService(store, evidence.Config{})
	svc := registry.NewService(store, registry.WithClock(func() time.Time { return fixedNow }))

	actor := newActor(uuid.New(), domain.RoleMember)
	rec := sealRecord(t, evSvc, actor)

	res, err := svc.Handle(context.Background(), actor, registry.GenerateDeclaration{Declaration: validDeclaration(rec.ID)})
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Equal(t, fixedNow, res.GeneratedAt)
	assert.NotEqual(t, uuid.Nil, res.DeclarationID)

	sum := sha256.Sum256(res.Document)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.SHA256)

	doc := string(res.Document)
	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, doc, `<CBAMDeclaration xmlns="`+registry.Namespace+`">`)
	assert.Contains(t, doc, "<EORI>FR123456789000</EORI>")
	assert.Contains(t, doc, "<Year>2026</Year>")
	assert.Contains(t, doc, "<Quarter>Q1</Quarter>")
	assert.Contains(t, doc, `<Good line="1">`)
	assert.Contains(t, doc, `<Good line="2">`)
	assert.Contains(t, doc, `reference="`+rec.DisplayID+`"`)
	assert.Contains(t, doc, `sha256="`+rec.PayloadHash+`"`)
	assert.Contains(t, doc, `<NetMass unit="t">19.750</NetMass>`)
	assert.Contains(t, doc, `<DirectEmbeddedEmissions unit="tCO2e">29.400</DirectEmbeddedEmissions>`)
	assert.Contains(t, doc, "<GeneratedAt>2026-04-02T09:30:00Z</GeneratedAt>")

	events, err := store.Audit().ListByTenant(context.Background(), actor.TenantID, domain.AuditFilter{
		EntityType: domain.EntityDeclaration,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ActionDeclarationBuilt, events[0].Action)
	assert.Equal(t, res.DeclarationID, events[0].EntityID)
	assert.Equal(t, res.SHA256, events[0].Details["sha256"])
	assert.Equal(t, domain.CitationCBAMRecordKeeping, events[0].RegulatoryCitation)
}

func TestService_Generate_Rejections(t *testing.T) {
	t.Parallel()

	store := memory.New()
	evSvc := evidence.NewService(store, evidence.Config{})
	svc := registry.NewService(store)

	member := newActor(uuid.New(), domain.RoleMember)
	rec := sealRecord(t, evSvc, member)

	t.Run("viewer", func(t *testing.T) {
		t.Parallel()

		viewer := newActor(member.TenantID, domain.RoleViewer)
		_, err := svc.Handle(context.Background(), viewer, registry.GenerateDeclaration{Declaration: validDeclaration(rec.ID)})
		requireCode(t, err, domain.CodeForbidden)
	})

	t.Run("invalid declaration", func(t *testing.T) {
		t.Parallel()

		decl := validDeclaration(rec.ID)
		decl.ReportingPeriod = "Q1"
		_, err := svc.Handle(context.Background(), member, registry.GenerateDeclaration{Declaration: decl})
		requireCode(t, err, domain.CodeValidationFailed)

		var de *domain.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "reporting_period", de.Field)
	})
}
