package neso

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientQuery(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, r.URL.Query().Get("sql"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"success": true,
				"result": {"records": [
					{"_id": 2, "Status": "ACCEPTED", "Utilisation Price GBP per MWh": "60.0"},
					{"_id": 1, "Status": "REJECTED", "Utilisation Price GBP per MWh": 45.0}
				]}
			}`))
		}))
		defer ts.Close()

		c := NewClient(ts.URL, ts.Client())
		records, err := c.Query(context.Background(), UtilizationSQL(DefaultUtilizationTable, 10))
		require.NoError(t, err)
		require.Len(t, records, 2)

		status, ok := records[0].String(types.ColStatus)
		require.True(t, ok)
		assert.Equal(t, "ACCEPTED", status)

		// string-typed price still parses
		price, ok := records[0].Float(types.ColUtilizationMWh)
		require.True(t, ok)
		assert.Equal(t, 60.0, price)
	})

	t.Run("ConflictReturnsEmpty", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer ts.Close()

		c := NewClient(ts.URL, ts.Client())
		records, err := c.Query(context.Background(), "SELECT 1")
		require.NoError(t, err, "409 must not surface as an error")
		assert.Empty(t, records)
		assert.NotNil(t, records, "409 yields an empty set, not nil")
	})

	t.Run("ServerError", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		c := NewClient(ts.URL, ts.Client())
		_, err := c.Query(context.Background(), "SELECT 1")
		var reqErr *RequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, http.StatusInternalServerError, reqErr.StatusCode)
	})

	t.Run("UnsuccessfulBody", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": false, "error": "bad sql"}`))
		}))
		defer ts.Close()

		c := NewClient(ts.URL, ts.Client())
		_, err := c.Query(context.Background(), "SELECT 1")
		var apiErr *APIResponseError
		require.ErrorAs(t, err, &apiErr)
		assert.Contains(t, apiErr.Message, "bad sql")
	})

	t.Run("MissingResult", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": true}`))
		}))
		defer ts.Close()

		c := NewClient(ts.URL, ts.Client())
		_, err := c.Query(context.Background(), "SELECT 1")
		var apiErr *APIResponseError
		require.ErrorAs(t, err, &apiErr)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer ts.Close()

		c := NewClient(ts.URL, ts.Client())
		_, err := c.Query(context.Background(), "SELECT 1")
		var apiErr *APIResponseError
		require.ErrorAs(t, err, &apiErr)
	})
}

func TestSQLBuilders(t *testing.T) {
	t.Run("BidsFiltered", func(t *testing.T) {
		sql := BidsSQL(DefaultBidsTable, "OCTOPUS ENERGY LIMITED", 1000)
		assert.Contains(t, sql, `FROM "`+DefaultBidsTable+`"`)
		assert.Contains(t, sql, `LIKE '%OCTOPUS ENERGY LIMITED%'`)
		assert.Contains(t, sql, `ORDER BY "_id" DESC LIMIT 1000`)
	})

	t.Run("BidsMarketWide", func(t *testing.T) {
		sql := BidsSQL(DefaultBidsTable, "", 1000)
		assert.NotContains(t, sql, "WHERE")
	})

	t.Run("EscapesQuotes", func(t *testing.T) {
		sql := BidsSQL(DefaultBidsTable, "O'BRIEN ENERGY", 10)
		assert.Contains(t, sql, "O''BRIEN ENERGY")
	})

	t.Run("Utilization", func(t *testing.T) {
		sql := UtilizationSQL(DefaultUtilizationTable, 10000)
		assert.Contains(t, sql, `FROM "`+DefaultUtilizationTable+`"`)
		assert.NotContains(t, sql, "WHERE")
		assert.Contains(t, sql, "LIMIT 10000")
	})
}
