// Package schemafile loads database schemas (a database name, a version and
// an ordered list of tables) from CUE or YAML files.
//
// CUE schemas declare tables as labelled structs, in creation order:
//
//	database: "CustomersDB"
//	version:  1
//	table: customers: {
//		keyPath:       "id"
//		autoIncrement: true
//		index: name: keyPath: "name"
//		index: email: {keyPath: "email", unique: true}
//	}
//
// YAML schemas use the same field names with tables and indices as lists:
//
//	database: CustomersDB
//	version: 1
//	tables:
//	  - name: customers
//	    keyPath: id
//	    autoIncrement: true
//	    indices:
//	      - {name: name, keyPath: name}
//
// Both are checked by Validate before use.
package schemafile
