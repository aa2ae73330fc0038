// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

/*
Package services adapts pipeline components to suture.Service.

Catalog pollers, the dispatch scheduler, and the reminder and link-check
workers share the Start(ctx)/Stop() lifecycle and are wrapped by
LifecycleService. The ops HTTP
server is wrapped by HTTPServerService.

	tree.AddIngestService(services.NewPollerService(poller, "east"))
	tree.AddDeliveryService(services.NewDispatchService(scheduler))
	tree.AddDeliveryService(services.NewReminderService(reminders))
	tree.AddDataService(services.NewLinkCheckService(worker))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))

Stop blocks until the component's in-flight tick finishes, so a service only
returns from Serve once no delivery or ingestion work is half done.
*/
package services
