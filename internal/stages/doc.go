// Package stages implements the four pipeline stage handlers: detail fetch,
// mirror search, download, and shelf upload. Handlers mutate item fields and
// report outcomes through returned errors; the pipeline owns every status
// transition.
package stages
