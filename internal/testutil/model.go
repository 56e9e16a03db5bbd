package testutil

import "github.com/roach88/beanplan/internal/meta"

// Customer is the root type used by most tests.
func Customer() *meta.Descriptor {
	return &meta.Descriptor{
		Name:  "Customer",
		Table: "customer",
		Props: []meta.Property{
			{Name: "id", Column: "id", ID: true},
			{Name: "name", Column: "name"},
			{Name: "status", Column: "status"},
			{Name: "notes", Column: "notes", Table: "ext"},
			{Name: "orderCount", Formula: "(select count(*) from orders o where o.customer_id = ${ta}.id)"},
		},
		Default: []string{"id", "name", "status"},
		Assocs: []meta.Association{
			{Name: "billingAddress", Kind: meta.AssocOne, Target: "Address", LocalColumns: []string{"billing_address_id"}, ForeignColumns: []string{"id"}, Optional: true},
			{Name: "shippingAddress", Kind: meta.AssocOne, Target: "Address", LocalColumns: []string{"shipping_address_id"}, ForeignColumns: []string{"id"}, Optional: true},
			{Name: "contacts", Kind: meta.AssocMany, Target: "Contact", LocalColumns: []string{"id"}, ForeignColumns: []string{"customer_id"}},
			{Name: "orders", Kind: meta.AssocMany, Target: "Order", LocalColumns: []string{"id"}, ForeignColumns: []string{"customer_id"}},
			{
				Name: "tags", Kind: meta.AssocMany, Target: "Tag",
				LocalColumns: []string{"id"}, ForeignColumns: []string{"id"},
				Intersection: &meta.Intersection{Table: "customer_tag", LocalColumns: []string{"customer_id"}, ForeignColumns: []string{"tag_id"}},
			},
			{Name: "audit", Kind: meta.AssocEmbedded, Target: "Audit"},
		},
		Secondaries: []meta.SecondaryTable{
			{Name: "ext", Table: "customer_ext", LocalColumns: []string{"id"}, ForeignColumns: []string{"customer_id"}},
		},
	}
}

// Model returns a registry with every fixture type.
func Model() *meta.Registry {
	return meta.NewRegistry(
		Customer(),
		&meta.Descriptor{
			Name:       "Audit",
			Embeddable: true,
			Props: []meta.Property{
				{Name: "createdBy", Column: "created_by"},
				{Name: "version", Column: "version"},
			},
		},
		&meta.Descriptor{
			Name:  "Address",
			Table: "address",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "line1", Column: "line1"},
				{Name: "city", Column: "city"},
			},
			Assocs: []meta.Association{
				{Name: "country", Kind: meta.AssocOne, Target: "Country", LocalColumns: []string{"country_code"}, ForeignColumns: []string{"code"}},
			},
		},
		&meta.Descriptor{
			Name:  "Country",
			Table: "country",
			Props: []meta.Property{
				{Name: "code", Column: "code", ID: true},
				{Name: "name", Column: "name"},
			},
		},
		&meta.Descriptor{
			Name:  "Contact",
			Table: "contact",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "firstName", Column: "first_name"},
				{Name: "lastName", Column: "last_name"},
				{Name: "email", Column: "email"},
			},
			Default: []string{"id", "firstName", "lastName"},
			Assocs: []meta.Association{
				{Name: "customer", Kind: meta.AssocOne, Target: "Customer", LocalColumns: []string{"customer_id"}, ForeignColumns: []string{"id"}},
				{Name: "notes", Kind: meta.AssocMany, Target: "ContactNote", LocalColumns: []string{"id"}, ForeignColumns: []string{"contact_id"}},
			},
		},
		&meta.Descriptor{
			Name:  "ContactNote",
			Table: "contact_note",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "title", Column: "title"},
			},
		},
		&meta.Descriptor{
			Name:  "Order",
			Table: "orders",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "status", Column: "status"},
			},
			Assocs: []meta.Association{
				{Name: "customer", Kind: meta.AssocOne, Target: "Customer", LocalColumns: []string{"customer_id"}, ForeignColumns: []string{"id"}},
				{Name: "promo", Kind: meta.AssocOne, Target: "Promo", LocalColumns: []string{"promo_id"}, ForeignColumns: []string{"id"}},
				{Name: "lines", Kind: meta.AssocMany, Target: "OrderLine", LocalColumns: []string{"id"}, ForeignColumns: []string{"order_id"}},
			},
		},
		&meta.Descriptor{
			Name:  "Promo",
			Table: "promo",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "code", Column: "code"},
			},
		},
		&meta.Descriptor{
			Name:  "OrderLine",
			Table: "order_line",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "quantity", Column: "quantity"},
				{Name: "description", Column: "description"},
			},
		},
		&meta.Descriptor{
			Name:  "Tag",
			Table: "tag",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "label", Column: "label"},
			},
		},
		&meta.Descriptor{
			Name:  "Vehicle",
			Table: "vehicle",
			Props: []meta.Property{
				{Name: "id", Column: "id", ID: true},
				{Name: "plate", Column: "plate"},
			},
			Discriminator: &meta.Discriminator{
				Column: "dtype",
				Values: map[string]string{"CAR": "Car", "TRUCK": "Truck"},
			},
		},
	)
}
