package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gridstream-data/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRegistryStub 启动一个归属注册服务桩
func newRegistryStub(t *testing.T, owners map[string]NodeOwnership) (*httptest.Server, *OwnershipClient) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		own, ok := owners[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(own)
	}))
	t.Cleanup(srv.Close)

	client := NewOwnershipClient(srv.URL, 2*time.Second, time.Minute, testLogger())
	return srv, client
}

func newAuthzFixture(t *testing.T, owners map[string]NodeOwnership) (*queryFixture, *AuthorizedQueryService) {
	fx := newQueryFixture(t, 1000)
	_, ownership := newRegistryStub(t, owners)
	return fx, NewAuthorizedQueryService(fx.svc, ownership)
}

func TestAuthz_OwnerAllowed(t *testing.T) {
	fx, authz := newAuthzFixture(t, map[string]NodeOwnership{
		"/api/v1/nodes/1/ownership": {NodeID: 1, OwnerID: 100},
	})
	fx.addStream(1, "meter/1", "UTC")

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}}
	_, err := authz.FindFilteredRaw(context.Background(), Actor{UserID: 100}, c, nil, 0, 10)
	assert.NoError(t, err)
}

func TestAuthz_NonOwnerDenied(t *testing.T) {
	_, authz := newAuthzFixture(t, map[string]NodeOwnership{
		"/api/v1/nodes/1/ownership": {NodeID: 1, OwnerID: 100},
	})

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}}
	_, err := authz.FindFilteredRaw(context.Background(), Actor{UserID: 200}, c, nil, 0, 10)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAuthz_ArchivedNodeDenied(t *testing.T) {
	_, authz := newAuthzFixture(t, map[string]NodeOwnership{
		"/api/v1/nodes/1/ownership": {NodeID: 1, OwnerID: 100, Archived: true},
	})

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}}
	_, err := authz.FindFilteredRaw(context.Background(), Actor{UserID: 100}, c, nil, 0, 10)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAuthz_UnregisteredNodeDenied(t *testing.T) {
	_, authz := newAuthzFixture(t, nil)

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{7}}
	_, err := authz.FindFilteredRaw(context.Background(), Actor{UserID: 100}, c, nil, 0, 10)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAuthz_AdminBypassesOwnership(t *testing.T) {
	fx, authz := newAuthzFixture(t, nil)
	fx.addStream(1, "meter/1", "UTC")

	c := &domain.DatumCriteria{Kind: domain.ObjectKindNode, ObjectIDs: []int64{1}}
	_, err := authz.FindFilteredRaw(context.Background(), Actor{UserID: 1, Admin: true}, c, nil, 0, 10)
	assert.NoError(t, err)
}

func TestAuthz_OwnershipCached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(NodeOwnership{NodeID: 1, OwnerID: 100})
	}))
	t.Cleanup(srv.Close)

	client := NewOwnershipClient(srv.URL, 2*time.Second, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		own, err := client.GetNodeOwnership(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(100), own.OwnerID)
	}
	assert.Equal(t, 1, calls)
}
