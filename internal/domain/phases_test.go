package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseCatalog(t *testing.T) {
	assert.Equal(t, []string{PhaseTechnicalData, PhaseSystemDesign, PhaseImplementation, PhaseOperation}, PhaseNames())

	sd, ok := PhaseByName(PhaseSystemDesign)
	require.True(t, ok)
	assert.Len(t, sd.Columns, 9)
	_, ok = PhaseByName("commissioning")
	assert.False(t, ok)

	for _, p := range Phases() {
		seen := map[string]bool{}
		for _, c := range p.Columns {
			assert.False(t, seen[c.Name], "%s.%s duplicated", p.Name, c.Name)
			seen[c.Name] = true
		}
		for k := range p.Defaults {
			assert.True(t, seen[k], "%s default %s has no column", p.Name, k)
		}
	}
}

func TestDefaultRecordIsCopy(t *testing.T) {
	p, _ := PhaseByName(PhaseOperation)
	rec := p.DefaultRecord()
	rec["monitoring_active"] = true
	assert.Equal(t, false, p.Defaults["monitoring_active"])
}

func TestCoerce(t *testing.T) {
	choice := Column{Name: "heat_source", Kind: KindText, Choices: HeatSources}
	v, err := choice.Coerce("Luft")
	require.NoError(t, err)
	assert.Equal(t, "Luft", v)
	_, err = choice.Coerce("Kohle")
	assert.Error(t, err)

	integer := Column{Name: "number_of_units", Kind: KindInteger}
	v, err = integer.Coerce(2.0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	_, err = integer.Coerce(2.5)
	assert.Error(t, err)

	number := Column{Name: "cop", Kind: KindNumber}
	v, err = number.Coerce(4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
	_, err = number.Coerce("4")
	assert.Error(t, err)

	date := Column{Name: "next_maintenance_date", Kind: KindDate}
	v, err = date.Coerce(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", v)
	v, err = date.Coerce("2025-03-01T08:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", v)
	_, err = date.Coerce("März")
	assert.Error(t, err)

	v, err = (Column{Name: "x", Kind: KindBool}).Coerce(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParse(t *testing.T) {
	v, err := Column{Kind: KindBool}.Parse("false")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Column{Kind: KindNumber}.Parse("3.8")
	require.NoError(t, err)
	assert.Equal(t, 3.8, v)

	v, err = Column{Kind: KindInteger}.Parse("3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = Column{Kind: KindText}.Parse("")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Column{Kind: KindInteger}.Parse("drei")
	assert.Error(t, err)
}
