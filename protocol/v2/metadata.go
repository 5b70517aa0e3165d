package v2

import "fmt"

// ServiceDocument renders the AtomPub service document at the feed
// root. Clients use it to discover the Packages collection.
func ServiceDocument(baseURL string) string {
	return fmt.Sprintf(`<service xmlns:atom="%s" xmlns:app="%s" xmlns="%s" xml:base="%s/api/v2/">
<workspace>
    <atom:title>Default</atom:title>
    <collection href="Packages">
        <atom:title>Packages</atom:title>
    </collection>
</workspace>
</service>`, NSAtom, NSApp, NSApp, baseURL)
}

// MetadataDocument is the static $metadata EDMX schema. NuGet and
// Chocolatey clients read it to map feed properties; the shape follows
// the NuGetGallery schema they were written against.
const MetadataDocument = `<edmx:Edmx xmlns:edmx="http://schemas.microsoft.com/ado/2007/06/edmx" Version="1.0">
    <edmx:DataServices xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata" m:DataServiceVersion="2.0">
        <Schema xmlns:d="http://schemas.microsoft.com/ado/2007/08/dataservices" xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata" xmlns="http://schemas.microsoft.com/ado/2006/04/edm" Namespace="NuGetGallery">
            <EntityType Name="V2FeedPackage" m:HasStream="true">
                <Key>
                    <PropertyRef Name="Id"/>
                    <PropertyRef Name="Version"/>
                </Key>
                <Property Name="Id" Type="Edm.String" Nullable="false" m:FC_TargetPath="SyndicationTitle" m:FC_ContentKind="text" m:FC_KeepInContent="false"/>
                <Property Name="Version" Type="Edm.String" Nullable="false"/>
                <Property Name="Title" Type="Edm.String" Nullable="true"/>
                <Property Name="Summary" Type="Edm.String" Nullable="true" m:FC_TargetPath="SyndicationSummary" m:FC_ContentKind="text" m:FC_KeepInContent="false"/>
                <Property Name="Description" Type="Edm.String" Nullable="true"/>
                <Property Name="Tags" Type="Edm.String" Nullable="true"/>
                <Property Name="Authors" Type="Edm.String" Nullable="true" m:FC_TargetPath="SyndicationAuthorName" m:FC_ContentKind="text" m:FC_KeepInContent="false"/>
                <Property Name="Created" Type="Edm.DateTime" Nullable="false"/>
                <Property Name="Dependencies" Type="Edm.String" Nullable="true"/>
                <Property Name="DownloadCount" Type="Edm.Int32" Nullable="false"/>
                <Property Name="VersionDownloadCount" Type="Edm.Int32" Nullable="false"/>
                <Property Name="ReportAbuseUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="IconUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="IsLatestVersion" Type="Edm.Boolean" Nullable="false"/>
                <Property Name="IsAbsoluteLatestVersion" Type="Edm.Boolean" Nullable="false"/>
                <Property Name="IsPrerelease" Type="Edm.Boolean" Nullable="false"/>
                <Property Name="LastUpdated" Type="Edm.DateTime" Nullable="false" m:FC_TargetPath="SyndicationUpdated" m:FC_ContentKind="text" m:FC_KeepInContent="false"/>
                <Property Name="Published" Type="Edm.DateTime" Nullable="false"/>
                <Property Name="LicenseUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="RequireLicenseAcceptance" Type="Edm.Boolean" Nullable="false"/>
                <Property Name="PackageHash" Type="Edm.String" Nullable="true"/>
                <Property Name="PackageHashAlgorithm" Type="Edm.String" Nullable="true"/>
                <Property Name="PackageSize" Type="Edm.Int64" Nullable="false"/>
                <Property Name="ProjectUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="ReleaseNotes" Type="Edm.String" Nullable="true"/>
                <Property Name="ProjectSourceUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="PackageSourceUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="DocsUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="MailingListUrl" Type="Edm.String" Nullable="true"/>
                <Property Name="BugTrackerUrl" Type="Edm.String" Nullable="true"/>
            </EntityType>
            <EntityContainer Name="FeedContext_x0060_1" m:IsDefaultEntityContainer="true">
                <EntitySet Name="Packages" EntityType="NuGetGallery.V2FeedPackage"/>
                <FunctionImport Name="Search" EntitySet="Packages" ReturnType="Collection(NuGetGallery.V2FeedPackage)" m:HttpMethod="GET">
                    <Parameter Name="searchTerm" Type="Edm.String" Mode="In"/>
                    <Parameter Name="targetFramework" Type="Edm.String" Mode="In"/>
                    <Parameter Name="includePrerelease" Type="Edm.Boolean" Mode="In"/>
                </FunctionImport>
                <FunctionImport Name="FindPackagesById" EntitySet="Packages" ReturnType="Collection(NuGetGallery.V2FeedPackage)" m:HttpMethod="GET">
                    <Parameter Name="id" Type="Edm.String" Mode="In"/>
                </FunctionImport>
                <FunctionImport Name="GetUpdates" EntitySet="Packages" ReturnType="Collection(NuGetGallery.V2FeedPackage)" m:HttpMethod="GET">
                    <Parameter Name="packageIds" Type="Edm.String" Mode="In"/>
                    <Parameter Name="versions" Type="Edm.String" Mode="In"/>
                    <Parameter Name="includePrerelease" Type="Edm.Boolean" Mode="In"/>
                    <Parameter Name="includeAllVersions" Type="Edm.Boolean" Mode="In"/>
                    <Parameter Name="targetFrameworks" Type="Edm.String" Mode="In"/>
                </FunctionImport>
            </EntityContainer>
        </Schema>
    </edmx:DataServices>
</edmx:Edmx>`
