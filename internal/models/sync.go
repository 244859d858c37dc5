package models

import "time"

// SyncStatus tags where a store stands between the local cache and the cloud
type SyncStatus string

const (
	SyncStatusLocalOnly  SyncStatus = "LOCAL_ONLY"
	SyncStatusSyncing    SyncStatus = "SYNCING"
	SyncStatusSynced     SyncStatus = "SYNCED"
	SyncStatusSyncFailed SyncStatus = "SYNC_FAILED"
)

// SyncEventType names the events published after a cloud phase finishes
type SyncEventType string

const (
	SyncEventSynced     SyncEventType = "storefront.store.synced"
	SyncEventSyncFailed SyncEventType = "storefront.store.sync_failed"
	SyncEventDeleted    SyncEventType = "storefront.store.deleted"
)

// SyncEvent is the payload published to the event stream
type SyncEvent struct {
	EventType    SyncEventType `json:"eventType"`
	StoreID      string        `json:"storeId"`
	MerchantID   string        `json:"merchantId"`
	URLSlug      string        `json:"urlSlug,omitempty"`
	Status       SyncStatus    `json:"status"`
	ProductCount int           `json:"productCount"`
	Error        string        `json:"error,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// CachedStore is one entry of the local cache
type CachedStore struct {
	Store         *Store     `json:"store"`
	SyncStatus    SyncStatus `json:"syncStatus"`
	LastSyncError string     `json:"lastSyncError,omitempty"`
	// CloudSynced is set once a full create-sync has completed
	CloudSynced bool `json:"cloudSynced"`
}
