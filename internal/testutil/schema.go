package testutil

import "fmt"

// Schema is the SQLite DDL for Model.
var Schema = []string{
	`CREATE TABLE country (code TEXT PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE address (id INTEGER PRIMARY KEY, line1 TEXT, city TEXT, country_code TEXT NOT NULL REFERENCES country(code))`,
	`CREATE TABLE customer (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		billing_address_id INTEGER REFERENCES address(id),
		shipping_address_id INTEGER REFERENCES address(id),
		created_by TEXT,
		version INTEGER
	)`,
	`CREATE TABLE customer_ext (customer_id INTEGER PRIMARY KEY REFERENCES customer(id), notes TEXT)`,
	`CREATE TABLE contact (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL REFERENCES customer(id), first_name TEXT, last_name TEXT, email TEXT)`,
	`CREATE TABLE contact_note (id INTEGER PRIMARY KEY, contact_id INTEGER NOT NULL REFERENCES contact(id), title TEXT)`,
	`CREATE TABLE promo (id INTEGER PRIMARY KEY, code TEXT NOT NULL)`,
	`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL REFERENCES customer(id), promo_id INTEGER REFERENCES promo(id), status TEXT NOT NULL)`,
	`CREATE TABLE order_line (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL REFERENCES orders(id), quantity INTEGER, description TEXT)`,
	`CREATE TABLE tag (id INTEGER PRIMARY KEY, label TEXT NOT NULL)`,
	`CREATE TABLE customer_tag (customer_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, PRIMARY KEY (customer_id, tag_id))`,
	`CREATE TABLE vehicle (id INTEGER PRIMARY KEY, dtype TEXT NOT NULL, plate TEXT)`,
}

// Seed is a small dataset over Schema:
//
//	customer 1 Acme     billing 1, shipping 2, contacts 10 11, orders 20 21, tags 1 2
//	customer 2 Globex   billing 3, contact 12, order 22, tag 2
//	customer 3 Initech  nothing attached
var Seed = []string{
	`INSERT INTO country (code, name) VALUES ('NZ', 'New Zealand'), ('AU', 'Australia')`,
	`INSERT INTO address (id, line1, city, country_code) VALUES
		(1, '1 Queen St', 'Auckland', 'NZ'),
		(2, '2 George St', 'Sydney', 'AU'),
		(3, '3 Lambton Quay', 'Wellington', 'NZ')`,
	`INSERT INTO customer (id, name, status, billing_address_id, shipping_address_id, created_by, version) VALUES
		(1, 'Acme', 'ACTIVE', 1, 2, 'admin', 1),
		(2, 'Globex', 'ACTIVE', 3, NULL, 'admin', 2),
		(3, 'Initech', 'INACTIVE', NULL, NULL, NULL, NULL)`,
	`INSERT INTO customer_ext (customer_id, notes) VALUES (1, 'priority'), (3, 'legacy')`,
	`INSERT INTO contact (id, customer_id, first_name, last_name, email) VALUES
		(10, 1, 'Ann', 'Smith', 'ann@acme.test'),
		(11, 1, 'Bob', 'Jones', 'bob@acme.test'),
		(12, 2, 'Cat', 'Brown', 'cat@globex.test')`,
	`INSERT INTO contact_note (id, contact_id, title) VALUES (100, 10, 'call back')`,
	`INSERT INTO promo (id, code) VALUES (1, 'SPRING')`,
	`INSERT INTO orders (id, customer_id, promo_id, status) VALUES
		(20, 1, 1, 'NEW'),
		(21, 1, NULL, 'SHIPPED'),
		(22, 2, NULL, 'NEW')`,
	`INSERT INTO order_line (id, order_id, quantity, description) VALUES
		(200, 20, 2, 'widget'),
		(201, 20, 1, 'gadget'),
		(202, 22, 5, 'bolt')`,
	`INSERT INTO tag (id, label) VALUES (1, 'vip'), (2, 'wholesale')`,
	`INSERT INTO customer_tag (customer_id, tag_id) VALUES (1, 1), (1, 2), (2, 2)`,
	`INSERT INTO vehicle (id, dtype, plate) VALUES (1, 'CAR', 'ABC123'), (2, 'TRUCK', 'TRK999')`,
}

// BulkCustomers returns inserts for n extra customers starting at id 1000,
// each with one order (id 5000+i).
func BulkCustomers(n int) []string {
	stmts := make([]string, 0, 2*n)
	for i := 0; i < n; i++ {
		stmts = append(stmts,
			fmt.Sprintf(`INSERT INTO customer (id, name, status) VALUES (%d, 'Bulk %03d', 'BULK')`, 1000+i, i),
			fmt.Sprintf(`INSERT INTO orders (id, customer_id, status) VALUES (%d, %d, 'NEW')`, 5000+i, 1000+i),
		)
	}
	return stmts
}
