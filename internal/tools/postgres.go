package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/charignon/cmdbridge/internal/executor"
	"github.com/charignon/cmdbridge/internal/pgservice"
)

const serviceDescription = "PostgreSQL service name from pg_service.conf"

// PostgresTools returns the psql tools backed by the service file store
func PostgresTools(builder *executor.CommandBuilder, runner Runner, store *pgservice.Store) []*Tool {
	serviceParam := Param{Name: "service", Type: TypeString, Required: true, Description: serviceDescription}
	schemaParam := Param{
		Name:        "schema",
		Type:        TypeString,
		Default:     executor.DefaultSchema,
		Description: "Schema name (optional, defaults to public)",
	}

	return []*Tool{
		{
			Name:        "list_pg_services",
			Description: "List PostgreSQL services defined in pg_service.conf",
			Handler: func(ctx context.Context, _ Arguments) Result {
				return Text(ServiceListing(store.Load(ctx)))
			},
		},
		{
			Name:        "execute_pg_query",
			Description: "Execute a read-only SQL query against a PostgreSQL service",
			Params: []Param{
				serviceParam,
				{Name: "query", Type: TypeString, Required: true, Description: "SQL query to execute (read-only operations only)"},
				{
					Name:        "format",
					Type:        TypeString,
					Default:     "table",
					Enum:        []string{"table", "csv", "json", "html"},
					Description: "Output format for the query results",
				},
			},
			Handler: func(ctx context.Context, args Arguments) Result {
				spec, err := builder.BuildQuery(args.String("service"), args.String("query"), args.String("format"))
				if err != nil {
					return Errorf("Failed to execute query: %v", err)
				}
				return runPsql(ctx, runner, store, spec, args.String("service"),
					"Failed to execute query", "Query executed successfully (no output)")
			},
		},
		{
			Name:        "describe_pg_table",
			Description: "Describe the structure of a PostgreSQL table",
			Params: []Param{
				serviceParam,
				{
					Name:        "table",
					Type:        TypeString,
					Required:    true,
					Description: "Table name to describe (names containing whitespace, backslashes or semicolons are rejected)",
				},
				schemaParam,
			},
			Handler: func(ctx context.Context, args Arguments) Result {
				schema, table := args.String("schema"), args.String("table")
				spec, err := builder.BuildDescribeTable(args.String("service"), schema, table)
				if err != nil {
					return Errorf("Failed to describe table: %v", err)
				}
				return runPsql(ctx, runner, store, spec, args.String("service"), "Failed to describe table",
					fmt.Sprintf("No information found for table %s.%s", schema, table))
			},
		},
		{
			Name:        "list_pg_tables",
			Description: "List tables in a PostgreSQL schema",
			Params: []Param{
				serviceParam,
				schemaParam,
			},
			Handler: func(ctx context.Context, args Arguments) Result {
				schema := args.String("schema")
				spec, err := builder.BuildListTables(args.String("service"), schema)
				if err != nil {
					return Errorf("Failed to list tables: %v", err)
				}
				return runPsql(ctx, runner, store, spec, args.String("service"), "Failed to list tables",
					fmt.Sprintf("No tables found in schema %s", schema))
			},
		},
	}
}

// ServiceListing renders a snapshot the way list_pg_services reports it
func ServiceListing(snap *pgservice.Snapshot) string {
	profiles := snap.Profiles()
	if len(profiles) == 0 {
		return "Available PostgreSQL services:\nNo services found in pg_service.conf"
	}

	lines := make([]string, 0, len(profiles))
	for _, p := range profiles {
		lines = append(lines, "• "+p.String())
	}
	return "Available PostgreSQL services:\n" + strings.Join(lines, "\n")
}

// runPsql runs a psql command. Services missing from the last loaded
// snapshot are still handed to psql, which also reads the system-wide file;
// a failure then notes where the service was looked up.
func runPsql(ctx context.Context, runner Runner, store *pgservice.Store, spec *executor.CommandSpec, service, errPrefix, empty string) Result {
	outcome, err := runner.Run(ctx, spec)
	if err != nil {
		if _, ok := store.Snapshot().Lookup(service); !ok {
			return Errorf("%s: %v (service %q is not defined in %s)", errPrefix, err, service, store.Path())
		}
		return Errorf("%s: %v", errPrefix, err)
	}
	payload := outcome.Payload()
	if payload == "" {
		return Text(empty)
	}
	return Text(payload)
}
