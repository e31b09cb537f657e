package store

import "testing"

func TestNewWhereBuilder(t *testing.T) {
	wb := NewWhereBuilder()

	if wb == nil {
		t.Fatal("NewWhereBuilder returned nil")
	}
	if wb.argIndex != 1 {
		t.Errorf("expected argIndex to be 1, got %d", wb.argIndex)
	}
	if len(wb.conditions) != 0 {
		t.Errorf("expected empty conditions, got %d", len(wb.conditions))
	}
}

func TestWhereBuilder_Build_Empty(t *testing.T) {
	whereClause, args := NewWhereBuilder().Build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_Add_MultipleConditions(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("status", "PENDENTE")
	wb.Add("tipo", "")
	wb.AddInt("fornecedor_id", 0)
	wb.AddInt("empresa_id", 3)

	whereClause, args := wb.Build()

	expectedClause := " WHERE status = $1 AND empresa_id = $2"
	if whereClause != expectedClause {
		t.Errorf("expected %q, got %q", expectedClause, whereClause)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	if args[0] != "PENDENTE" || args[1] != int64(3) {
		t.Errorf("expected args [PENDENTE 3], got %v", args)
	}
}

func TestWhereBuilder_AddRange(t *testing.T) {
	tests := []struct {
		name       string
		from, to   string
		wantClause string
		wantArgs   int
	}{
		{"both bounds", "2024-01-01", "2024-12-31", " WHERE d >= $1 AND d <= $2", 2},
		{"lower only", "2024-01-01", "", " WHERE d >= $1", 1},
		{"upper only", "", "2024-12-31", " WHERE d <= $1", 1},
		{"none", "", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder()
			wb.AddRange("d", tt.from, tt.to)
			clause, args := wb.Build()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestWhereBuilder_AddSearch(t *testing.T) {
	tests := []struct {
		name       string
		wb         *WhereBuilder
		query      string
		wantClause string
		wantArgs   int
	}{
		{
			name:       "empty query skipped",
			wb:         NewWhereBuilder(),
			query:      "  ",
			wantClause: "",
		},
		{
			name:       "postgres",
			wb:         NewWhereBuilder(),
			query:      "acme",
			wantClause: " WHERE (a ILIKE $1 OR b ILIKE $2)",
			wantArgs:   2,
		},
		{
			name:       "sqlite",
			wb:         NewSQLiteWhereBuilder(),
			query:      "acme",
			wantClause: " WHERE (a LIKE ? OR b LIKE ?)",
			wantArgs:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.wb.AddSearch(tt.query, "a", "b")
			clause, args := tt.wb.Build()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
			if tt.wantArgs > 0 && args[0] != "%acme%" {
				t.Errorf("args[0] = %v, want %%acme%%", args[0])
			}
		})
	}
}

func TestWhereBuilder_Placeholder(t *testing.T) {
	wb := NewWhereBuilder()

	if got := wb.Placeholder(0); got != "$1" {
		t.Errorf("initial Placeholder(0) = %q, want $1", got)
	}

	wb.Add("col1", "val1")
	wb.AddRange("created_at", "start", "end")
	if got := wb.Placeholder(0); got != "$4" {
		t.Errorf("Placeholder(0) = %q, want $4", got)
	}
}
