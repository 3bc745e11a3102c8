// Package crawler holds the frontier data model shared by every other package:
// work items and their statuses, the URL classifier, URL normalization, and the
// collaborator interfaces (FrontierStore, Fetcher, LinkExtractor, Throttle, Clock)
// that the control and worker packages are written against.
package crawler
