package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitysql/internal/builder"
	"entitysql/internal/dialect"
	"entitysql/internal/format"
	"entitysql/internal/mapping"
	"entitysql/internal/ormerr"
	"entitysql/internal/samplemodel"
)

// team exposes members, but member holds no foreign key back to it.
type team struct {
	TeamID  int64 `db:"TeamId,pk"`
	Name    string
	Members []*member
}

type member struct {
	MemberID int64 `db:"MemberId,pk"`
	TeamID   int64 `db:"TeamId"`
}

// desk references the composite employee key with a single column.
type desk struct {
	DeskID      int64  `db:"DeskId,pk"`
	OwnerUserID *int64 `db:"OwnerUserId,fk=Owner"`
	Owner       *samplemodel.Employee
}

// project holds two collections of the same child type.
type project struct {
	ProjectID int64 `db:"ProjectId,pk"`
	Leads     []*contributor
	Members   []*contributor
}

type contributor struct {
	ContributorID int64  `db:"ContributorId,pk"`
	ProjectID     *int64 `db:"ProjectId,fk=Project"`
	Project       *project
}

func newBuilder[T any](t *testing.T, reg *mapping.Registry) *builder.StatementBuilder {
	t.Helper()
	r, err := mapping.RegistrationFor[T](reg)
	require.NoError(t, err)
	return builder.New(r)
}

func TestResolve_ChainedJoins(t *testing.T) {
	reg := mapping.NewRegistry(dialect.MsSql)
	employee := newBuilder[samplemodel.Employee](t, reg)
	workstation := newBuilder[samplemodel.Workstation](t, reg)
	building := newBuilder[samplemodel.Building](t, reg)

	plan, err := Resolve(employee, "", []Spec{
		{Builder: workstation, MapResults: true},
		{Builder: building, Kind: LeftOuter, MapResults: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "[Employee] "+
		"INNER JOIN [Workstation] ON [Employee].[WorkstationId] = [Workstation].[WorkstationId] "+
		"LEFT OUTER JOIN [Building] ON [Workstation].[BuildingId] = [Building].[Id]", plan.FromClause())
	assert.Contains(t, plan.SelectClause(), "[Employee].[UserId] AS [UserID]")
	assert.Contains(t, plan.SelectClause(), "[Building].[Id] AS [BuildingID]")

	require.Len(t, plan.Relationships, 2)
	first := plan.Relationships[0]
	assert.Equal(t, 0, first.Child)
	assert.Equal(t, 1, first.Parent)
	assert.Equal(t, "Workstation", first.ChildNavigation.Name())
	assert.Equal(t, "Employees", first.ParentNavigation.Name())

	second := plan.Relationships[1]
	assert.Equal(t, 1, second.Anchor, "building hangs off the workstation")
	assert.Equal(t, 2, second.Joined)
	assert.Equal(t, "Building", second.ChildNavigation.Name())
	assert.Equal(t, "Workstations", second.ParentNavigation.Name())

	assert.Equal(t, []*Relationship{first, second}, plan.Stages())
}

func TestResolve_ParentFirst(t *testing.T) {
	reg := mapping.NewRegistry(dialect.MsSql)
	plan, err := Resolve(newBuilder[samplemodel.Building](t, reg), "b", []Spec{
		{Builder: newBuilder[samplemodel.Workstation](t, reg), Alias: "w"},
	})
	require.NoError(t, err)

	assert.Equal(t, "[Building] AS [b] INNER JOIN [Workstation] AS [w] ON [w].[BuildingId] = [b].[Id]", plan.FromClause())
	rel := plan.Relationships[0]
	assert.Equal(t, 1, rel.Child)
	assert.Equal(t, 0, rel.Parent)
	assert.Empty(t, plan.Stages(), "nothing is mapped without MapResults")
}

func TestResolve_SelfJoinNeedsNavigationHints(t *testing.T) {
	reg := mapping.NewRegistry(dialect.PostgreSql)
	employee := newBuilder[samplemodel.Employee](t, reg)

	_, err := Resolve(employee, "e", []Spec{{Builder: employee, Alias: "m"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousRelationship)
	assert.ErrorIs(t, err, ormerr.ErrConfiguration)

	tests := []struct {
		name string
		spec Spec
		want string
	}{
		{
			name: "joined entity is the manager",
			spec: Spec{Builder: employee, Alias: "m", FromNavigation: "Manager"},
			want: `"e"."ManagerUserId" = "m"."UserId" AND "e"."ManagerEmployeeId" = "m"."EmployeeId"`,
		},
		{
			name: "joined entity is the report",
			spec: Spec{Builder: employee, Alias: "r", ToNavigation: "Manager"},
			want: `"r"."ManagerUserId" = "e"."UserId" AND "r"."ManagerEmployeeId" = "e"."EmployeeId"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Resolve(employee, "e", []Spec{tt.spec})
			require.NoError(t, err)
			assert.Contains(t, plan.FromClause(), " ON "+tt.want)
		})
	}
}

func TestResolve_ExplicitOn(t *testing.T) {
	reg := mapping.NewRegistry(dialect.MsSql)
	building := newBuilder[samplemodel.Building](t, reg)
	employee := newBuilder[samplemodel.Employee](t, reg)

	_, err := Resolve(building, "", []Spec{{Builder: employee}})
	assert.ErrorIs(t, err, ErrRelationshipNotFound)
	assert.Contains(t, err.Error(), "Employee")

	plan, err := Resolve(building, "b", []Spec{{
		Builder: employee,
		On:      "{WorkstationID:TC} = {b.BuildingID:TC}",
	}})
	require.NoError(t, err)
	assert.Equal(t, "[Building] AS [b] INNER JOIN [Employee] ON [Employee].[WorkstationId] = [b].[Id]", plan.FromClause())
	assert.Empty(t, plan.Relationships)

	plan, err = Resolve(building, "", []Spec{{Builder: employee, On: "1 = 1", MapResults: true}})
	require.NoError(t, err, "an explicit ON does not need a relationship")
	assert.Empty(t, plan.Relationships)

	_, err = Resolve(building, "", []Spec{{Builder: employee, On: "{w.Name:TC} = 1"}})
	assert.ErrorIs(t, err, format.ErrUnknownReference, "only participants introduced so far are known")
}

func TestResolve_JoinOrder(t *testing.T) {
	reg := mapping.NewRegistry(dialect.MySql)
	employee := newBuilder[samplemodel.Employee](t, reg)
	workstation := newBuilder[samplemodel.Workstation](t, reg)
	building := newBuilder[samplemodel.Building](t, reg)

	_, err := Resolve(employee, "", []Spec{
		{Builder: building, From: "w"},
		{Builder: workstation, Alias: "w"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJoinOrder)
	assert.Contains(t, err.Error(), `"w"`)

	plan, err := Resolve(employee, "", []Spec{
		{Builder: workstation, Alias: "w"},
		{Builder: building, From: "w"},
	})
	require.NoError(t, err)
	assert.Contains(t, plan.FromClause(), "INNER JOIN `Building` ON `w`.`BuildingId` = `Building`.`Id`")
}

func TestResolve_Errors(t *testing.T) {
	reg := mapping.NewRegistry(dialect.SQLite)

	t.Run("collection without foreign key", func(t *testing.T) {
		_, err := Resolve(newBuilder[team](t, reg), "", []Spec{{Builder: newBuilder[member](t, reg)}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInconsistentMapping)
		assert.Contains(t, err.Error(), "team.Members")
	})

	t.Run("key count mismatch", func(t *testing.T) {
		_, err := Resolve(newBuilder[desk](t, reg), "", []Spec{{Builder: newBuilder[samplemodel.Employee](t, reg)}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrKeyCountMismatch)
		assert.Contains(t, err.Error(), "OwnerUserID")
	})

	t.Run("several collections", func(t *testing.T) {
		proj := newBuilder[project](t, reg)
		contrib := newBuilder[contributor](t, reg)

		_, err := Resolve(proj, "", []Spec{{Builder: contrib}})
		require.NoError(t, err, "the ON clause does not depend on the collection")

		_, err = Resolve(proj, "", []Spec{{Builder: contrib, MapResults: true}})
		assert.ErrorIs(t, err, ErrAmbiguousRelationship)
		assert.Contains(t, err.Error(), "Leads, Members")

		plan, err := Resolve(proj, "", []Spec{{Builder: contrib, FromNavigation: "Members", MapResults: true}})
		require.NoError(t, err)
		assert.Equal(t, "Members", plan.Relationships[0].ParentNavigation.Name())
	})

	t.Run("duplicate table", func(t *testing.T) {
		employee := newBuilder[samplemodel.Employee](t, reg)
		_, err := Resolve(employee, "", []Spec{{Builder: employee, FromNavigation: "Manager"}})
		assert.ErrorIs(t, err, format.ErrDuplicateAlias)
	})

	t.Run("missing entity", func(t *testing.T) {
		_, err := Resolve(newBuilder[team](t, reg), "", []Spec{{}})
		assert.ErrorIs(t, err, ormerr.ErrConfiguration)
	})
}
