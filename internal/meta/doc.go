// Package meta describes entity types to the planner.
//
// A Descriptor is the deployed view of one entity type: its table, id
// properties, persistent scalar properties, associations to other types and
// the "lean" default select clause used when a query does not name the
// properties it wants. The planner never parses annotations or naming
// conventions itself; it only consumes descriptors through Provider.
//
// Association column conventions:
//
//	AssocOne   LocalColumns = foreign key on the owner table
//	           ForeignColumns = id columns on the target table
//	AssocMany  LocalColumns = id columns on the owner table
//	           ForeignColumns = foreign key on the target table
//	           (many-to-many: ForeignColumns = target ids, Intersection
//	           holds the link table columns)
//	AssocEmbedded  no columns; the target's properties map onto the
//	           owner's table
package meta
