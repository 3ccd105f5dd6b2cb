// Package fastmssql is a connection-pooled client for Microsoft SQL Server
// and Azure SQL Database, built on top of the github.com/microsoft/go-mssqldb
// TDS driver.
//
// The package manages its own bounded pool of physical connections instead of
// delegating to [database/sql], which makes pool behavior first-class: a hard
// size cap, a minimum-idle floor with background replenishment, connection
// warmup, per-connection lifetime and idle recycling, liveness testing on
// checkout, and a bounded checkout wait.
//
// # Basic Usage
//
//	cfg, err := fastmssql.NewConfig(
//	    fastmssql.WithServer("localhost", 1433),
//	    fastmssql.WithDatabase("master"),
//	    fastmssql.WithSQLAuth("sa", "secret"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conn, err := fastmssql.NewConnection(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	res, err := conn.Execute(ctx, "SELECT name, create_date FROM sys.databases WHERE database_id = @p1", 1)
//
// [Connection.Execute] inspects the statement text and automatically routes
// it through the row-returning or the affected-count path. Results are either
// materialized rows or the total number of rows affected by the batch.
//
// # Query Parameters
//
// Use "@p1", "@p2", etc. for positional parameters. Supported parameter
// values are nil, bool, signed and unsigned integers up to 64 bits, float32,
// float64, string and []byte. A slice or array of any other element type is
// expanded in place into consecutive positional parameters, which keeps
// IN-clause construction simple.
//
// # Azure AD Authentication
//
// Pass a [Credential] to authenticate with Azure Active Directory:
//
//	conn, err := fastmssql.NewConnection(cfg,
//	    fastmssql.WithCredential(fastmssql.ServicePrincipalCredential(clientID, secret, tenantID)))
//
// Service principal, managed identity, static token and the default Azure
// credential chain are supported. Tokens are cached and refreshed shortly
// before expiry.
//
// # Concurrency
//
// A Connection is safe for concurrent use. The pool is initialized exactly
// once no matter how many goroutines race on the first call; independent
// queries run in parallel on separate physical connections up to the pool's
// size cap.
package fastmssql
