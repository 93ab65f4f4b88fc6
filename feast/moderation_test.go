package feast

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// fakeClient 记录最近一次请求并返回预置响应。
type fakeClient struct {
	lastReq *GetOnlineFeaturesRequest
	resp    *GetOnlineFeaturesResponse
	err     error
}

func (c *fakeClient) GetOnlineFeatures(_ context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error) {
	c.lastReq = req
	return c.resp, c.err
}

func (c *fakeClient) Close() error { return nil }

func responseWith(feature, value string) *GetOnlineFeaturesResponse {
	return &GetOnlineFeaturesResponse{
		FeatureVectors: []FeatureVector{
			{Values: map[string]interface{}{feature: value}},
		},
	}
}

func TestModerationProviderBlockedCreators(t *testing.T) {
	client := &fakeClient{resp: responseWith(FeatureBlockedCreators, "c1, c2,,c3 ")}
	p := NewModerationProvider(client)

	ids, err := p.BlockedCreators(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BlockedCreators: %v", err)
	}
	if want := []string{"c1", "c2", "c3"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	if got := client.lastReq.Features; !reflect.DeepEqual(got, []string{FeatureBlockedCreators}) {
		t.Fatalf("requested features = %v", got)
	}
	if got := client.lastReq.EntityRows[0]["user_id"]; got != "u1" {
		t.Fatalf("entity user_id = %v, want u1", got)
	}
}

func TestModerationProviderFlaggedItems(t *testing.T) {
	client := &fakeClient{resp: responseWith(FeatureFlaggedItems, "i1,i2")}
	p := NewModerationProvider(client)

	ids, err := p.FlaggedItems(context.Background())
	if err != nil {
		t.Fatalf("FlaggedItems: %v", err)
	}
	if want := []string{"i1", "i2"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	if got := client.lastReq.EntityRows[0]["scope"]; got != "global" {
		t.Fatalf("entity scope = %v, want global", got)
	}
}

func TestModerationProviderClientError(t *testing.T) {
	wantErr := errors.New("feature server down")
	p := NewModerationProvider(&fakeClient{err: wantErr})

	if _, err := p.BlockedCreators(context.Background(), "u1"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if _, err := p.FlaggedItems(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestExtractIDList(t *testing.T) {
	tests := []struct {
		name    string
		resp    *GetOnlineFeaturesResponse
		feature string
		want    []string
	}{
		{
			name:    "nil response",
			resp:    nil,
			feature: FeatureFlaggedItems,
			want:    nil,
		},
		{
			name:    "no vectors",
			resp:    &GetOnlineFeaturesResponse{},
			feature: FeatureFlaggedItems,
			want:    nil,
		},
		{
			name:    "feature missing",
			resp:    responseWith(FeatureBlockedCreators, "c1"),
			feature: FeatureFlaggedItems,
			want:    nil,
		},
		{
			name:    "empty value",
			resp:    responseWith(FeatureFlaggedItems, ""),
			feature: FeatureFlaggedItems,
			want:    nil,
		},
		{
			name: "non-string value",
			resp: &GetOnlineFeaturesResponse{
				FeatureVectors: []FeatureVector{
					{Values: map[string]interface{}{FeatureFlaggedItems: 42.0}},
				},
			},
			feature: FeatureFlaggedItems,
			want:    nil,
		},
		{
			name:    "whitespace and empty segments trimmed",
			resp:    responseWith(FeatureFlaggedItems, " i1 ,, i2,"),
			feature: FeatureFlaggedItems,
			want:    []string{"i1", "i2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractIDList(tt.resp, tt.feature)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("extractIDList() = %v, want %v", got, tt.want)
			}
		})
	}
}
