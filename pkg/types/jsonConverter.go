package types

import "encoding/json"

func (item Event) MarshalJSON() ([]byte, error) {
	tags := item.Tags
	if tags == nil {
		tags = []Tag{}
	}
	return json.MarshalIndent(&struct {
		ID        string `json:"id"`
		PubKey    string `json:"pubkey"`
		CreatedAt int64  `json:"created_at"`
		Kind      int    `json:"kind"`
		Tags      []Tag  `json:"tags"`
		Content   string `json:"content"`
		Sig       string `json:"sig"`
	}{
		ID:        item.ID.String(),
		PubKey:    item.Author.String(),
		CreatedAt: item.CreatedAt,
		Kind:      item.Kind,
		Tags:      tags,
		Content:   item.Content,
		Sig:       item.Sig.String(),
	}, "", "    ")
}

func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Follower string `json:"follower"`
		Followee string `json:"followee"`
	}{
		Follower: e.Follower.String(),
		Followee: e.Followee.String(),
	})
}
