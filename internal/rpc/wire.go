// Package rpc exposes the store contract over Connect so that independent
// client processes share one authoritative record store, and provides the
// matching client that implements store.Store over the wire.
package rpc

import (
	"encoding/json"

	"github.com/duesync/duesync/internal/models"
)

// Procedure routes for the store service.
const (
	ProcedureCreateGroup  = "/duesync.v1.StoreService/CreateGroup"
	ProcedureDeleteGroup  = "/duesync.v1.StoreService/DeleteGroup"
	ProcedureAppendDebtee = "/duesync.v1.StoreService/AppendDebtee"
	ProcedurePatchDebtee  = "/duesync.v1.StoreService/PatchDebtee"
	ProcedureGetGroup     = "/duesync.v1.StoreService/GetGroup"
	ProcedureWatch        = "/duesync.v1.StoreService/Watch"
)

type CreateGroupRequest struct {
	Name string `json:"name"`
	// CreatorID may be omitted; the server then stamps the identity
	// carried by the bearer token.
	CreatorID string `json:"creator_id,omitempty"`
}

type CreateGroupResponse struct {
	Group models.DebtGroup `json:"group"`
}

type DeleteGroupRequest struct {
	GroupID string `json:"group_id"`
}

type DeleteGroupResponse struct{}

type AppendDebteeRequest struct {
	GroupID string        `json:"group_id"`
	Debtee  models.Debtee `json:"debtee"`
}

type AppendDebteeResponse struct{}

type PatchDebteeRequest struct {
	GroupID  string `json:"group_id"`
	DebteeID string `json:"debtee_id"`
	Paid     *bool  `json:"paid,omitempty"`
}

type PatchDebteeResponse struct{}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupResponse struct {
	Group models.DebtGroup `json:"group"`
}

type WatchRequest struct{}

// jsonCodec marshals the plain wire structs above with encoding/json. It
// replaces Connect's default protobuf codecs under the same "json" name, so
// client and handler negotiate application/json without generated protos.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, message)
}
