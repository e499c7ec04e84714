package mcpserver

// QueryLanguage describes the filter language accepted by the query tools.
const QueryLanguage = `# ansuz Query Language

Records are JSON objects addressed by a logical path such as /posts/hello.
Every record carries the computed fields path, dir, slug, extension,
createdAt and updatedAt next to the fields parsed from its source file.

## Filters

A filter is a JSON object mapping field names to conditions:

` + "```" + `json
{"dir": "/posts", "draft": {"$exists": false}, "tags": {"$all": ["go"]}}
` + "```" + `

* A literal means deep equality (arrays compare in order).
* An object whose keys start with "$" is an operator map; all operators must hold.
* A field that is absent never matches, except through $exists.
* Dotted names address nested values: "author.name", "tags.0".

Operators: $eq $ne $gt $gte $lt $lte $between $regex $in $nin $not $and $or
$exists $size $all $elemMatch $startsWith $endsWith.

$and, $or and $not may also appear at the top level with nested filters:

` + "```" + `json
{"$or": [{"category": "go"}, {"title": {"$regex": "(?i)golang"}}]}
` + "```" + `

## Pipeline

filter, then fuzzy search (keys slug, name, title by default), then sort,
skip, limit and finally projection (only, then without).
`
