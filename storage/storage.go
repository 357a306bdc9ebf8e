package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"workshop-board/domain"
)

// TableConfig names the tables and queue backing the board service.
type TableConfig struct {
	ServiceTickets string
	Budgets        string
	WorkOrders     string
	Warranties     string
	PriorParts     string
	EventsQueue    string
}

// Storage provides the authoritative item store: Azure tables for snapshots,
// an Azure queue for the domain-events feed other processes (and this one)
// publish mutations to.
type Storage struct {
	tables      map[domain.Kind]*aztables.Client
	partsTable  *aztables.Client
	eventsQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr string, cfg TableConfig) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, cfg.EventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		tables: map[domain.Kind]*aztables.Client{
			domain.KindService:   svc.NewClient(cfg.ServiceTickets),
			domain.KindBudget:    svc.NewClient(cfg.Budgets),
			domain.KindWorkOrder: svc.NewClient(cfg.WorkOrders),
			domain.KindWarranty:  svc.NewClient(cfg.Warranties),
		},
		partsTable:  svc.NewClient(cfg.PriorParts),
		eventsQueue: eq,
	}, nil
}

// EventsQueue exposes the domain-events queue client so the relay can drain
// the same queue this store publishes to.
func (s *Storage) EventsQueue() *azqueue.QueueClient {
	return s.eventsQueue
}

// Items are partitioned by kind: one partition per board, row key = item id.
type itemEntity struct {
	aztables.Entity
	State           string  `json:"State"`
	Title           string  `json:"Title"`
	Notes           string  `json:"Notes"`
	ClientRef       string  `json:"ClientRef"`
	EquipmentRef    string  `json:"EquipmentRef"`
	PriorServiceRef string  `json:"PriorServiceRef"`
	Amount          float64 `json:"Amount"`
	CreatedAt       string  `json:"CreatedAt"`
	UpdatedAt       string  `json:"UpdatedAt"`
}

type partEntity struct {
	aztables.Entity
	Description string  `json:"Description"`
	Cost        float64 `json:"Cost"`
}

func decodeItemEntity(data []byte, kind domain.Kind) (domain.Item, error) {
	var ent itemEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Item{}, err
	}
	created, _ := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, ent.UpdatedAt)
	return domain.Item{
		ID:              ent.RowKey,
		Kind:            kind,
		State:           domain.State(ent.State),
		Title:           ent.Title,
		Notes:           ent.Notes,
		ClientRef:       ent.ClientRef,
		EquipmentRef:    ent.EquipmentRef,
		PriorServiceRef: ent.PriorServiceRef,
		Amount:          ent.Amount,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}, nil
}

func (s *Storage) tableFor(kind domain.Kind) (*aztables.Client, error) {
	table, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("no table configured for kind %q", kind)
	}
	return table, nil
}

// ListItems retrieves every item of the given kind.
func (s *Storage) ListItems(ctx context.Context, kind domain.Kind) ([]domain.Item, error) {
	table, err := s.tableFor(kind)
	if err != nil {
		return nil, err
	}
	filter := "PartitionKey eq '" + string(kind) + "'"
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	items := []domain.Item{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			item, err := decodeItemEntity(e, kind)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// SetState is the confirming request behind an optimistic move: it merges the
// new state into the entity, reads the authoritative snapshot back, and
// enqueues a state-changed event for the push channel relay.
func (s *Storage) SetState(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error) {
	table, err := s.tableFor(kind)
	if err != nil {
		return nil, err
	}
	prev, err := s.getItem(ctx, table, kind, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"PartitionKey": string(kind),
		"RowKey":       id,
		"State":        string(to),
		"UpdatedAt":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if verdict != nil {
		updates["VerdictOutcome"] = string(verdict.Outcome)
		updates["VerdictJustification"] = verdict.Justification
	}
	payload, err := json.Marshal(updates)
	if err != nil {
		return nil, err
	}
	et := azcore.ETagAny
	if _, err := table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	}); err != nil {
		return nil, err
	}

	item, err := s.getItem(ctx, table, kind, id)
	if err != nil {
		return nil, err
	}
	s.enqueueEvent(ctx, domain.Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		Type:          domain.ItemStateChanged,
		ItemID:        id,
		Item:          item,
		PreviousState: prev.State,
		Timestamp:     nextTimestamp(),
	})
	return item, nil
}

// ListCandidateItems fetches the parts recorded against a prior service.
func (s *Storage) ListCandidateItems(ctx context.Context, priorServiceRef string) ([]domain.CandidateItem, error) {
	if priorServiceRef == "" {
		return nil, nil
	}
	filter := "PartitionKey eq '" + priorServiceRef + "'"
	pager := s.partsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	parts := []domain.CandidateItem{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent partEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			parts = append(parts, domain.CandidateItem{
				ID:          ent.RowKey,
				Description: ent.Description,
				Cost:        ent.Cost,
			})
		}
	}
	return parts, nil
}

// CreateZeroCostWorkOrder inserts the follow-up order for an accepted
// warranty claim and announces it on the events queue.
func (s *Storage) CreateZeroCostWorkOrder(ctx context.Context, warrantyID string, verdict domain.Verdict) (*domain.Item, error) {
	table, err := s.tableFor(domain.KindWorkOrder)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	order := domain.Item{
		ID:              uuid.NewString(),
		Kind:            domain.KindWorkOrder,
		State:           domain.OrderOpen,
		Title:           "Warranty repair for claim " + warrantyID,
		Notes:           verdict.Justification,
		PriorServiceRef: warrantyID,
		Amount:          0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ent := map[string]any{
		"PartitionKey":    string(domain.KindWorkOrder),
		"RowKey":          order.ID,
		"State":           string(order.State),
		"Title":           order.Title,
		"Notes":           order.Notes,
		"PriorServiceRef": order.PriorServiceRef,
		"Amount":          order.Amount,
		"CreatedAt":       now.Format(time.RFC3339Nano),
		"UpdatedAt":       now.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return nil, err
	}
	if _, err := table.UpsertEntity(ctx, payload, nil); err != nil {
		return nil, err
	}
	s.enqueueEvent(ctx, domain.Event{
		ID:        uuid.NewString(),
		Kind:      domain.KindWorkOrder,
		Type:      domain.ItemCreated,
		ItemID:    order.ID,
		Item:      &order,
		Timestamp: nextTimestamp(),
	})
	return &order, nil
}

func (s *Storage) getItem(ctx context.Context, table *aztables.Client, kind domain.Kind, id string) (*domain.Item, error) {
	resp, err := table.GetEntity(ctx, string(kind), id, nil)
	if err != nil {
		return nil, err
	}
	item, err := decodeItemEntity(resp.Value, kind)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// enqueueEvent publishes a mutation to the domain-events queue. The relay
// republishes it on the per-kind push topic; delivery is at-least-once, so a
// failure here only delays other viewers, it never fails the mutation.
func (s *Storage) enqueueEvent(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	envelope, err := json.Marshal(domain.EventEnvelope{Kind: ev.Kind, Payload: sonic.NoCopyRawMessage(data)})
	if err != nil {
		return
	}
	_, _ = s.eventsQueue.EnqueueMessage(ctx, string(envelope), nil)
}

var lastTimestamp int64

// nextTimestamp returns a strictly increasing unix-nano stamp for events.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
