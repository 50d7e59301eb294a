/*
Package refresh keeps the local catalog in step with the upstream API.

Key Components:

  - RefreshService: runs full refreshes and load-only updates
  - Settings: deletion threshold and cursor handling
  - Report: what one run changed

RefreshService Methods:

	Run: fetch the server list and loads, apply both
	UpdateLoads: fetch and apply loads only

A full run works in three steps:

 1. The stored "last-modified" cursor is read from the catalog metadata.
 2. The server list (sent with If-Modified-Since: cursor) and the loads
    are fetched concurrently. Either failure aborts the run before
    anything is written.
 3. When the list changed, the servers are upserted, servers missing from
    the list with tier <= Settings.MaxDeleteTier are deleted, and the new
    cursor and run id are stored, all in one transaction. Loads are
    applied afterwards; loads for unknown servers are skipped.

Settings Configuration:

	type Settings struct {
		MaxDeleteTier int  // highest tier a refresh may delete
		Force         bool // ignore the stored cursor
		SkipLoads     bool // do not touch dynamic fields
	}

Usage Example:

	svc := refresh.NewRefreshService(store, source, logger, refresh.Settings{
		MaxDeleteTier: viper.GetInt("refresh.max_delete_tier"),
	})
	report, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("Refresh done", "upserted", report.Upserted, "deleted", report.Deleted)
*/
package refresh
