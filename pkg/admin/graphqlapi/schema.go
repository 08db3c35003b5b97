// Package graphqlapi exposes a read-only GraphQL introspection schema
// over a cell's persistent commits, downed participants and leadership —
// status only, never the transaction payload a commit carries.
package graphqlapi

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

// Resolver answers the Query type's fields from a Supervisor's
// status-only accessors.
type Resolver struct {
	sup *txsupervisor.Supervisor
}

func NewResolver(sup *txsupervisor.Supervisor) *Resolver {
	return &Resolver{sup: sup}
}

func (r *Resolver) Commits(p graphql.ResolveParams) (interface{}, error) {
	summaries := r.sup.PersistentCommitSummaries()
	out := make([]map[string]interface{}, len(summaries))
	for i, s := range summaries {
		cells := make([]string, len(s.ParticipantCellIds))
		for j, c := range s.ParticipantCellIds {
			cells[j] = c.String()
		}
		out[i] = map[string]interface{}{
			"txId":               s.TxId.String(),
			"userName":           s.UserName,
			"participantCellIds": cells,
			"distributed":        s.Distributed,
			"persistentState":    s.PersistentState.String(),
		}
	}
	return out, nil
}

func (r *Resolver) DownedParticipants(p graphql.ResolveParams) (interface{}, error) {
	down := r.sup.Registry().GetDownedParticipants(nil)
	out := make([]string, len(down))
	for i, c := range down {
		out[i] = c.String()
	}
	return out, nil
}

func (r *Resolver) IsLeader(p graphql.ResolveParams) (interface{}, error) {
	return r.sup.IsLeader(), nil
}

// Schema builds the read-only introspection schema over sup.
func Schema(sup *txsupervisor.Supervisor) (graphql.Schema, error) {
	commitType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Commit",
		Description: "Status of a persistent commit this cell is tracking",
		Fields: graphql.Fields{
			"txId": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "Transaction id",
			},
			"userName": &graphql.Field{
				Type:        graphql.String,
				Description: "User that initiated the commit",
			},
			"participantCellIds": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(graphql.String)),
				Description: "Cells participating in this commit",
			},
			"distributed": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Boolean),
				Description: "Whether this commit spans more than one cell",
			},
			"persistentState": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "The commit's durable state (Start, Prepare, Commit, Abort)",
			},
		},
	})

	resolver := NewResolver(sup)

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Query",
		Description: "Root query type for the cell's operator surface",
		Fields: graphql.Fields{
			"commits": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(commitType)),
				Description: "Every commit this cell still carries persistent state for",
				Resolve:     resolver.Commits,
			},
			"downedParticipants": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(graphql.String)),
				Description: "Participant cells currently considered unreachable",
				Resolve:     resolver.DownedParticipants,
			},
			"isLeader": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Boolean),
				Description: "Whether this replica currently leads its cell",
				Resolve:     resolver.IsLeader,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("build graphql schema: %w", err)
	}
	return schema, nil
}
