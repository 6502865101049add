package goCartes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarteUnmarshalLooseColumns(t *testing.T) {
	raw := `{
		"ID": "12",
		"NOM": "KOFFI",
		"PRENOMS": "Jean",
		"CONTACT": 707070707,
		"DATE DE NAISSANCE": "1990-04-01",
		"DELIVRANCE": null,
		"NUMERO DE LOT": "L-17",
		"OBSERVATIONS": {"note": "abîmée"}
	}`
	var c Carte
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	assert.Equal(t, 12, c.ID)
	assert.Equal(t, "KOFFI", c.LastName)
	assert.Equal(t, "707070707", c.Contact)
	assert.Equal(t, "1990-04-01", c.BirthDate)
	assert.Empty(t, c.Delivery)
	assert.False(t, c.Delivered())
	assert.JSONEq(t, `"L-17"`, string(c.Extra["NUMERO DE LOT"]))
	assert.JSONEq(t, `{"note": "abîmée"}`, string(c.Extra["OBSERVATIONS"]))
}

func TestCarteMarshalWritesExtraBack(t *testing.T) {
	c := Carte{
		ID:         3,
		LastName:   "TRAORE",
		FirstNames: "Issa",
		Storage:    "B2",
		Extra: map[string]json.RawMessage{
			"NUMERO DE LOT": json.RawMessage(`"L-17"`),
			ColumnStorage:   json.RawMessage(`"stale"`),
		},
	}
	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ID":3,"NOM":"TRAORE","PRENOMS":"Issa","RANGEMENT":"B2","NUMERO DE LOT":"L-17"}`, string(out))
}

func TestCarteMarshalNewRecord(t *testing.T) {
	out, err := json.Marshal(Carte{LastName: "BAMBA", FirstNames: "Fatou"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"NOM":"BAMBA","PRENOMS":"Fatou"}`, string(out))
}

func TestWithdrawalPercent(t *testing.T) {
	assert.Equal(t, 0, GlobalStatistics{}.WithdrawalPercent())
	assert.Equal(t, 0, SiteStatistics{Site: "Vide", Withdrawn: 3}.WithdrawalPercent())
	assert.Equal(t, 67, GlobalStatistics{Total: 3, Withdrawn: 2}.WithdrawalPercent())
	assert.Equal(t, 100, SiteStatistics{Total: 8, Withdrawn: 8}.WithdrawalPercent())
}

func TestSearchCriteriaQuery(t *testing.T) {
	q := SearchCriteria{LastName: "koffi", WithdrawalSite: "Cocody", Page: 2}.Query()
	assert.Equal(t, "koffi", q.Get("nom"))
	assert.Equal(t, "Cocody", q.Get("siteRetrait"))
	assert.Equal(t, "2", q.Get("page"))
	assert.False(t, q.Has("limit"))
	assert.False(t, q.Has("prenom"))
	assert.Len(t, q, 3)
}
