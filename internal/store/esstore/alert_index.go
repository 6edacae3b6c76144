package esstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rediguard/internal/client"
	"rediguard/internal/models"
	"rediguard/internal/store"
	"rediguard/internal/util"
)

// AlertIndex stores alerts as Elasticsearch documents. Documents are indexed
// under their deterministic alert ID with refresh enabled, so an alert that
// exists by direct lookup is immediately findable through search, and
// replaying the same event overwrites the same document instead of
// duplicating it.
type AlertIndex struct {
	es    *client.ESClient
	index string
}

const alertMapping = `{
  "mappings": {
    "properties": {
      "alert_id":     {"type": "keyword"},
      "user_id":      {"type": "keyword"},
      "ip":           {"type": "keyword"},
      "score":        {"type": "double"},
      "location":     {"type": "text"},
      "geo_jump_km":  {"type": "double"},
      "risk_factors": {"type": "keyword"},
      "timestamp":    {"type": "long"},
      "resolved":     {"type": "boolean"}
    }
  }
}`

func NewAlertIndex(es *client.ESClient, index string) (*AlertIndex, error) {
	a := &AlertIndex{es: es, index: index}
	if err := a.ensureIndex(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *AlertIndex) ensureIndex() error {
	res, err := a.es.Client.Indices.Create(
		a.index,
		a.es.Client.Indices.Create.WithBody(strings.NewReader(alertMapping)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer res.Body.Close()

	// An existing index is fine; anything else is a real failure.
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create alert index: %s", res.String())
	}
	util.Info("Alert index ready", zap.String("index", a.index))
	return nil
}

func (a *AlertIndex) Index(ctx context.Context, alert *models.Alert) error {
	res, err := a.es.IndexDocument(ctx, a.index, alert.AlertID, alert)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index alert: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Alert `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (a *AlertIndex) Search(ctx context.Context, query store.AlertQuery) ([]models.Alert, error) {
	limit := query.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	res, err := a.es.Search(ctx, a.index, buildQuery(query, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var parsed searchResponse
	if err := a.es.ParseResponse(res, &parsed); err != nil {
		return nil, err
	}

	alerts := make([]models.Alert, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		alerts = append(alerts, hit.Source)
	}
	return alerts, nil
}

func buildQuery(query store.AlertQuery, limit int) map[string]interface{} {
	var must []interface{}

	if query.MinScore != nil || query.MaxScore != nil {
		scoreRange := map[string]interface{}{}
		if query.MinScore != nil {
			scoreRange["gte"] = *query.MinScore
		}
		if query.MaxScore != nil {
			scoreRange["lte"] = *query.MaxScore
		}
		must = append(must, map[string]interface{}{"range": map[string]interface{}{"score": scoreRange}})
	}
	if query.StartTime != nil || query.EndTime != nil {
		timeRange := map[string]interface{}{}
		if query.StartTime != nil {
			timeRange["gte"] = *query.StartTime
		}
		if query.EndTime != nil {
			timeRange["lte"] = *query.EndTime
		}
		must = append(must, map[string]interface{}{"range": map[string]interface{}{"timestamp": timeRange}})
	}
	if query.UserID != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"user_id": query.UserID}})
	}
	if query.IP != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"ip": query.IP}})
	}
	if query.Location != "" {
		must = append(must, map[string]interface{}{"match": map[string]interface{}{"location": query.Location}})
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	} else {
		boolQuery["must"] = []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}}},
		"size":  limit,
	}
}

func (a *AlertIndex) Count(ctx context.Context) (int64, error) {
	res, err := a.es.Count(ctx, a.index)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := a.es.ParseResponse(res, &parsed); err != nil {
		return 0, err
	}
	return parsed.Count, nil
}

func (a *AlertIndex) Clear(ctx context.Context) error {
	if err := a.es.DeleteIndex(ctx, a.index); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return a.ensureIndex()
}
