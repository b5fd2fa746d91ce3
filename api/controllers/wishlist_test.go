package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWishlistToggleFlipsMembership(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 1800, 4)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/wishlist/%s/toggle", productID), nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var envelope struct {
		Data struct {
			ProductID  uuid.UUID `json:"product_id"`
			Wishlisted bool      `json:"wishlisted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Wishlisted)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/wishlist/%s/toggle", productID), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.Wishlisted)
}

func TestWishlistToggleRejectsBadProductID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/wishlist/not-a-uuid/toggle", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWishlistListReturnsProductCards(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 1800, 4)

	env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/wishlist/%s/toggle", productID), nil)
	env.flush(t)

	resp := env.do(t, http.MethodGet, "/api/v1/wishlist", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var envelope struct {
		Data []wishlistEntryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, productID, envelope.Data[0].ProductID)
	assert.Equal(t, "Walnut serving board", envelope.Data[0].Title)
	assert.Equal(t, 1800, envelope.Data[0].PriceCents)
	assert.True(t, envelope.Data[0].InStock)
}

func TestWishlistListPaginates(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		productID := env.seedProduct(t, 1000+i, 2)
		env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/wishlist/%s/toggle", productID), nil)
	}
	env.flush(t)

	resp := env.do(t, http.MethodGet, "/api/v1/wishlist?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data []wishlistEntryResponse `json:"data"`
		Meta *struct {
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 2)
	require.NotNil(t, envelope.Meta)
	require.NotEmpty(t, envelope.Meta.NextCursor)

	resp = env.do(t, http.MethodGet, "/api/v1/wishlist?limit=2&cursor="+url.QueryEscape(envelope.Meta.NextCursor), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var second struct {
		Data []wishlistEntryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &second))
	require.Len(t, second.Data, 1)
	assert.NotEqual(t, envelope.Data[0].ProductID, second.Data[0].ProductID)
	assert.NotEqual(t, envelope.Data[1].ProductID, second.Data[0].ProductID)
}
