package semantic

import (
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/WessleyAI/issuesim/engine/corpus"
)

// pointNamespace scopes deterministic point ids to this corpus layout.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("issuesim/row"))

// PointID derives a stable point id from a row's issue number and its
// position in the corpus. Issue numbers repeat once per comment, so the
// position is part of the key.
func PointID(number, seq int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%d/%d", number, seq)).String()
}

func rowPayload(r corpus.Row, seq int) map[string]*pb.Value {
	return map[string]*pb.Value{
		"number":        intValue(int64(r.Number)),
		"seq":           intValue(int64(seq)),
		"title":         stringValue(r.Title),
		"body":          stringValue(r.Body),
		"url":           stringValue(r.URL),
		"comment":       stringValue(r.Comment),
		"comment_words": intValue(int64(r.CommentWords)),
		"text":          stringValue(r.Text),
	}
}

func payloadRow(p map[string]*pb.Value) corpus.Row {
	return corpus.Row{
		Number:       int(p["number"].GetIntegerValue()),
		Title:        p["title"].GetStringValue(),
		Body:         p["body"].GetStringValue(),
		URL:          p["url"].GetStringValue(),
		Comment:      p["comment"].GetStringValue(),
		CommentWords: int(p["comment_words"].GetIntegerValue()),
		Text:         p["text"].GetStringValue(),
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}
